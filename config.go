package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/agentcore-samples/toolgate/internal/permission"
)

const (
	backendDynamoDB = "dynamodb"
	backendSQLite   = "sqlite"
	backendFile     = "file"
	backendSecret   = "secret"
)

// config is resolved from the environment; CLI flags override it.
type config struct {
	Backend  string
	Table    string
	Region   string
	DBPath   string
	File     string
	SecretID string
	Mode     string
	LogLevel string
}

func configFromEnv() config {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	return config{
		Backend:  envOr("PERMISSIONS_BACKEND", backendDynamoDB),
		Table:    envOr("PERMISSIONS_TABLE", permission.DefaultTable),
		Region:   region,
		DBPath:   envOr("PERMISSIONS_DB", "toolgate.db"),
		File:     os.Getenv("PERMISSIONS_FILE"),
		SecretID: os.Getenv("PERMISSIONS_SECRET_ID"),
		Mode:     envOr("INTERCEPTOR_MODE", "auto"),
		LogLevel: envOr("LOG_LEVEL", "info"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openStore builds the configured permission backend. The returned
// close function is always non-nil.
func openStore(ctx context.Context, cfg config, logger *slog.Logger) (permission.Store, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case backendDynamoDB:
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, noop, err
		}
		s := permission.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Table)
		logger.Debug("using dynamodb permission store", "table", s.Table(), "region", awsCfg.Region)
		return s, noop, nil

	case backendSQLite:
		s, err := permission.NewSQLiteStore(cfg.DBPath, logger)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { s.Close() }, nil

	case backendFile:
		if cfg.File == "" {
			return nil, noop, fmt.Errorf("PERMISSIONS_FILE is required for the %s backend", backendFile)
		}
		s, err := permission.LoadFile(cfg.File)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case backendSecret:
		if cfg.SecretID == "" {
			return nil, noop, fmt.Errorf("PERMISSIONS_SECRET_ID is required for the %s backend", backendSecret)
		}
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, noop, err
		}
		s, err := permission.LoadSecret(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.SecretID)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown permissions backend %q", cfg.Backend)
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}
