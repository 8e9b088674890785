// Package permission reads per-client tool allowlists.
package permission

import (
	"context"
	"errors"
	"sort"
)

// DefaultTable is the DynamoDB table used when none is configured.
const DefaultTable = "ClientToolPermissions"

// ErrReadOnly is returned by backends that cannot be administered.
var ErrReadOnly = errors.New("permission backend is read-only")

// Record is one (client, tool) row. A client's effective permissions are
// the ToolName values of its records with Allowed set.
type Record struct {
	ClientID string `dynamodbav:"ClientID" yaml:"client_id" json:"client_id"`
	ToolName string `dynamodbav:"ToolName" yaml:"tool" json:"tool"`
	Allowed  bool   `dynamodbav:"Allowed" yaml:"allowed" json:"allowed"`
}

// Store queries permission records by client identifier.
type Store interface {
	Query(ctx context.Context, clientID string) ([]Record, error)
}

// Writer is implemented by backends that support administration.
// The interceptors never write.
type Writer interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, clientID, toolName string) error
}

// ToolSet is a set of logical tool names.
type ToolSet map[string]struct{}

// Allowed reduces records to the set of allowed tool names.
func Allowed(records []Record) ToolSet {
	set := make(ToolSet, len(records))
	for _, r := range records {
		if r.Allowed && r.ToolName != "" {
			set[r.ToolName] = struct{}{}
		}
	}
	return set
}

func (s ToolSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the tool names in sorted order.
func (s ToolSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
