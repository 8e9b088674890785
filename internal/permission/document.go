package permission

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"gopkg.in/yaml.v3"
)

// Document is a static permission set, kept in a YAML file or a Secrets
// Manager secret. JSON documents parse as well.
//
//	version: "1"
//	permissions:
//	  - client_id: c1
//	    tool: search
//	    allowed: true
type Document struct {
	Version     string   `yaml:"version"`
	Permissions []Record `yaml:"permissions"`
}

// DocumentStore serves queries from a Document loaded once at start.
type DocumentStore struct {
	byClient map[string][]Record
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ParseDocument parses and validates a permission document.
func ParseDocument(data []byte) (*DocumentStore, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse permission document: %w", err)
	}

	s := &DocumentStore{byClient: make(map[string][]Record)}
	for i, r := range doc.Permissions {
		if r.ClientID == "" || r.ToolName == "" {
			return nil, fmt.Errorf("permission %d: client_id and tool are required", i)
		}
		s.byClient[r.ClientID] = append(s.byClient[r.ClientID], r)
	}
	return s, nil
}

// LoadFile reads a permission document from disk.
func LoadFile(path string) (*DocumentStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permission file: %w", err)
	}
	return ParseDocument(data)
}

// LoadSecret reads a permission document from a Secrets Manager secret.
func LoadSecret(ctx context.Context, api SecretsAPI, secretID string) (*DocumentStore, error) {
	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", secretID, err)
	}
	if out.SecretString != nil {
		return ParseDocument([]byte(*out.SecretString))
	}
	if len(out.SecretBinary) > 0 {
		return ParseDocument(out.SecretBinary)
	}
	return nil, fmt.Errorf("secret %s has no value", secretID)
}

func (s *DocumentStore) Query(_ context.Context, clientID string) ([]Record, error) {
	return s.byClient[clientID], nil
}

func (s *DocumentStore) Put(context.Context, Record) error {
	return ErrReadOnly
}

func (s *DocumentStore) Delete(context.Context, string, string) error {
	return ErrReadOnly
}
