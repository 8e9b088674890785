package interceptor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/agentcore-samples/toolgate/internal/gateway"
	"github.com/agentcore-samples/toolgate/internal/permission"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func makeToken(payload string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","kid":"test"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return "Bearer " + header + "." + body + ".signature"
}

// mockStore implements permission.Store from an in-memory record list.
type mockStore struct {
	records []permission.Record
	err     error
	calls   int
}

func (m *mockStore) Query(_ context.Context, clientID string) ([]permission.Record, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []permission.Record
	for _, r := range m.records {
		if r.ClientID == clientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func mustEvent(t *testing.T, raw string) *gateway.Event {
	t.Helper()
	ev, err := gateway.ParseEvent([]byte(raw))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	return ev
}

type toolsListBody struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  struct {
		Tools      []map[string]any `json:"tools"`
		NextCursor string           `json:"nextCursor"`
	} `json:"result"`
}

func decodeToolsList(t *testing.T, out *gateway.Output) toolsListBody {
	t.Helper()
	if out == nil || out.MCP.TransformedGatewayResponse == nil {
		t.Fatalf("expected transformedGatewayResponse, got %+v", out)
	}
	var b toolsListBody
	if err := json.Unmarshal(out.MCP.TransformedGatewayResponse.Body, &b); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return b
}

func toolNames(b toolsListBody) []string {
	names := make([]string, 0, len(b.Result.Tools))
	for _, tool := range b.Result.Tools {
		names = append(names, tool["name"].(string))
	}
	return names
}

type denialBody struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

func decodeDenial(t *testing.T, out *gateway.Output) denialBody {
	t.Helper()
	if out == nil || out.MCP.TransformedGatewayResponse == nil {
		t.Fatalf("expected denial response, got %+v", out)
	}
	if out.MCP.TransformedGatewayRequest != nil {
		t.Fatal("denial must not forward the request")
	}
	if out.MCP.TransformedGatewayResponse.StatusCode != 200 {
		t.Errorf("status = %d, want 200", out.MCP.TransformedGatewayResponse.StatusCode)
	}
	var b denialBody
	if err := json.Unmarshal(out.MCP.TransformedGatewayResponse.Body, &b); err != nil {
		t.Fatalf("decode denial: %v", err)
	}
	if !b.Result.IsError {
		t.Error("denial must set isError")
	}
	if len(b.Result.Content) != 1 || b.Result.Content[0].Type != "text" {
		t.Fatalf("unexpected content %+v", b.Result.Content)
	}
	return b
}
