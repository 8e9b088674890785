package permission

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps the permission table in a local SQLite file, for
// development and for replaying events without AWS access.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database and applies the schema.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Debug("sqlite permission store opened", "path", dbPath)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Query(ctx context.Context, clientID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, tool_name, allowed FROM tool_permissions WHERE client_id = ? ORDER BY tool_name`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var allowed int
		if err := rows.Scan(&r.ClientID, &r.ToolName, &allowed); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		r.Allowed = allowed != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	allowed := 0
	if rec.Allowed {
		allowed = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_permissions (client_id, tool_name, allowed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id, tool_name) DO UPDATE SET
			allowed = excluded.allowed,
			updated_at = excluded.updated_at
	`, rec.ClientID, rec.ToolName, allowed, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put permission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, clientID, toolName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tool_permissions WHERE client_id = ? AND tool_name = ?`,
		clientID, toolName,
	)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
