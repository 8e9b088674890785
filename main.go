package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/agentcore-samples/toolgate/internal/interceptor"
	"github.com/agentcore-samples/toolgate/internal/permission"
)

var version = "dev"

func main() {
	cfg := configFromEnv()

	// The Lambda runtime starts the binary without arguments.
	if len(os.Args) < 2 {
		if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
			os.Exit(runLambda(cfg))
		}
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "lambda":
		os.Exit(runLambda(cfg))
	case "invoke":
		err = runInvoke(cfg, os.Args[2:])
	case "grant":
		err = runPut(cfg, "grant", true, os.Args[2:])
	case "deny":
		err = runPut(cfg, "deny", false, os.Args[2:])
	case "revoke":
		err = runRevoke(cfg, os.Args[2:])
	case "list":
		err = runList(cfg, os.Args[2:])
	case "version":
		fmt.Fprintf(os.Stderr, "toolgate %s\n", version)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runLambda(cfg config) int {
	// CloudWatch gets JSON records.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	handler, closeStore, err := buildHandler(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize interceptor", "error", err)
		return 1
	}
	defer closeStore()

	logger.Info("interceptor starting",
		"version", version,
		"mode", cfg.Mode,
		"backend", cfg.Backend,
		"table", cfg.Table,
	)
	lambda.Start(handler.Handle)
	return 0
}

// buildHandler wires the permission store into both interceptors. The
// store client is created once per process and reused across invocations.
func buildHandler(ctx context.Context, cfg config, logger *slog.Logger) (*interceptor.Handler, func(), error) {
	mode, err := interceptor.ParseMode(cfg.Mode)
	if err != nil {
		return nil, func() {}, err
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, closeStore, err
	}

	router := interceptor.NewRouter(mode,
		interceptor.NewRequestAuthorizer(logger),
		interceptor.NewResponseFilter(permission.NewClient(store, logger), logger),
	)
	return interceptor.NewHandler(router, logger), closeStore, nil
}

// runInvoke replays one interceptor event from a file or stdin and
// prints the output the Gateway would receive.
func runInvoke(cfg config, args []string) error {
	fs := flag.NewFlagSet("invoke", flag.ExitOnError)
	eventPath := fs.String("event", "-", "event JSON file (- for stdin)")
	registerStoreFlags(fs, &cfg)
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "interceptor mode (auto, request, response)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.Parse(args)

	logger := newCLILogger(cfg.LogLevel)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	raw, err := readEvent(*eventPath)
	if err != nil {
		return err
	}

	handler, closeStore, err := buildHandler(ctx, cfg, logger)
	defer closeStore()
	if err != nil {
		return err
	}

	out, err := handler.Handle(ctx, raw)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readEvent(path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return data, nil
}

func runPut(cfg config, name string, allowed bool, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	clientID := fs.String("client", "", "client identifier (token client_id claim)")
	toolName := fs.String("tool", "", "logical tool name, without the target prefix")
	registerStoreFlags(fs, &cfg)
	fs.Parse(args)

	if *clientID == "" || *toolName == "" {
		return errors.New("-client and -tool are required")
	}

	return withWriter(cfg, func(ctx context.Context, w permission.Writer) error {
		rec := permission.Record{ClientID: *clientID, ToolName: *toolName, Allowed: allowed}
		if err := w.Put(ctx, rec); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: %s -> %s\n", name, rec.ClientID, rec.ToolName)
		return nil
	})
}

func runRevoke(cfg config, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	clientID := fs.String("client", "", "client identifier")
	toolName := fs.String("tool", "", "logical tool name")
	registerStoreFlags(fs, &cfg)
	fs.Parse(args)

	if *clientID == "" || *toolName == "" {
		return errors.New("-client and -tool are required")
	}

	return withWriter(cfg, func(ctx context.Context, w permission.Writer) error {
		if err := w.Delete(ctx, *clientID, *toolName); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "revoked: %s -> %s\n", *clientID, *toolName)
		return nil
	})
}

func runList(cfg config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	clientID := fs.String("client", "", "client identifier")
	registerStoreFlags(fs, &cfg)
	fs.Parse(args)

	if *clientID == "" {
		return errors.New("-client is required")
	}

	logger := newCLILogger(cfg.LogLevel)
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, logger)
	defer closeStore()
	if err != nil {
		return err
	}

	// Query directly so that store errors surface instead of reading as
	// an empty allowlist.
	records, err := store.Query(ctx, *clientID)
	if err != nil {
		return err
	}
	for _, r := range records {
		state := "denied"
		if r.Allowed {
			state = "allowed"
		}
		fmt.Printf("%s\t%s\n", r.ToolName, state)
	}
	fmt.Fprintf(os.Stderr, "%d record(s), %d allowed\n", len(records), len(permission.Allowed(records)))
	return nil
}

func withWriter(cfg config, fn func(ctx context.Context, w permission.Writer) error) error {
	logger := newCLILogger(cfg.LogLevel)
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, logger)
	defer closeStore()
	if err != nil {
		return err
	}
	w, ok := store.(permission.Writer)
	if !ok {
		return permission.ErrReadOnly
	}
	return fn(ctx, w)
}

func registerStoreFlags(fs *flag.FlagSet, cfg *config) {
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "permissions backend (dynamodb, sqlite, file, secret)")
	fs.StringVar(&cfg.Table, "table", cfg.Table, "DynamoDB permissions table")
	fs.StringVar(&cfg.Region, "region", cfg.Region, "AWS region (default: AWS_REGION)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.File, "file", cfg.File, "YAML permissions document")
	fs.StringVar(&cfg.SecretID, "secret", cfg.SecretID, "Secrets Manager secret holding the permissions document")
}

func newCLILogger(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "toolgate: tool-permission interceptor for MCP Gateways")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  toolgate lambda                          Run the Lambda interceptor (default under Lambda)")
	fmt.Fprintln(os.Stderr, "  toolgate invoke [-event file]            Run one interceptor event and print the output")
	fmt.Fprintln(os.Stderr, "  toolgate grant  -client ID -tool NAME    Allow a tool for a client")
	fmt.Fprintln(os.Stderr, "  toolgate deny   -client ID -tool NAME    Record an explicit deny")
	fmt.Fprintln(os.Stderr, "  toolgate revoke -client ID -tool NAME    Delete a permission record")
	fmt.Fprintln(os.Stderr, "  toolgate list   -client ID               Show a client's permission records")
	fmt.Fprintln(os.Stderr, "  toolgate version                         Print version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Store options (all commands except version):")
	fmt.Fprintln(os.Stderr, "  -backend string   dynamodb, sqlite, file or secret (env PERMISSIONS_BACKEND, default \"dynamodb\")")
	fmt.Fprintln(os.Stderr, "  -table string     DynamoDB table (env PERMISSIONS_TABLE, default \"ClientToolPermissions\")")
	fmt.Fprintln(os.Stderr, "  -region string    AWS region (env AWS_REGION)")
	fmt.Fprintln(os.Stderr, "  -db string        SQLite path (env PERMISSIONS_DB, default \"toolgate.db\")")
	fmt.Fprintln(os.Stderr, "  -file string      YAML permissions document (env PERMISSIONS_FILE)")
	fmt.Fprintln(os.Stderr, "  -secret string    Secrets Manager secret id (env PERMISSIONS_SECRET_ID)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  INTERCEPTOR_MODE  auto, request or response (default \"auto\")")
	fmt.Fprintln(os.Stderr, "  LOG_LEVEL         debug, info, warn, error (default \"info\")")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  toolgate grant -backend sqlite -client c1 -tool search")
	fmt.Fprintln(os.Stderr, "  toolgate invoke -backend sqlite -event testdata/tools_list_response.json")
	fmt.Fprintln(os.Stderr, "  toolgate list -client c1 -region us-west-2")
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
