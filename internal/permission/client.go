package permission

import (
	"context"
	"log/slog"
)

// Client resolves a client's allowed tools. Store errors are logged and
// reported as an empty set so that callers fail closed; there is no
// caching and no retry.
type Client struct {
	store  Store
	logger *slog.Logger
}

func NewClient(s Store, logger *slog.Logger) *Client {
	return &Client{store: s, logger: logger}
}

// AllowedTools returns the tools clientID may see and invoke.
func (c *Client) AllowedTools(ctx context.Context, clientID string) ToolSet {
	if clientID == "" {
		return ToolSet{}
	}

	records, err := c.store.Query(ctx, clientID)
	if err != nil {
		c.logger.Error("permission lookup failed, denying all tools",
			"client_id", clientID,
			"error", err,
		)
		return ToolSet{}
	}

	set := Allowed(records)
	c.logger.Debug("permission lookup",
		"client_id", clientID,
		"records", len(records),
		"allowed", len(set),
	)
	return set
}
