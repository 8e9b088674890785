package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentcore-samples/toolgate/internal/gateway"
	"github.com/agentcore-samples/toolgate/internal/identity"
	"github.com/agentcore-samples/toolgate/internal/permission"
	"github.com/agentcore-samples/toolgate/internal/toolname"
)

// X-Auth-Error header and its values on deny-all tools/list responses.
const (
	HeaderAuthError    = "X-Auth-Error"
	AuthErrMissingID   = "MissingClientId"
	AuthErrInterceptor = "InterceptorError"

	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

var errNoResponse = errors.New("event has no gatewayResponse")

// PermissionLookup returns the tools a client may use.
type PermissionLookup interface {
	AllowedTools(ctx context.Context, clientID string) permission.ToolSet
}

// ResponseFilter removes tools the caller may not use from tools/list
// responses. Other responses pass through unchanged.
type ResponseFilter struct {
	perms  PermissionLookup
	logger *slog.Logger
}

func NewResponseFilter(perms PermissionLookup, logger *slog.Logger) *ResponseFilter {
	return &ResponseFilter{perms: perms, logger: logger}
}

func (f *ResponseFilter) Intercept(ctx context.Context, ev *gateway.Event) (*gateway.Output, error) {
	resp := ev.MCP.GatewayResponse
	if resp == nil {
		return nil, errNoResponse
	}

	if !isToolsListExchange(ev) {
		return gateway.ResponseOutput(resp), nil
	}

	id := messageID(resp.Body)
	clientID, ok := identity.ClientID(ev.Authorization())
	if !ok {
		f.logger.Warn("no client_id in token, hiding all tools")
		return denyAllTools(id, AuthErrMissingID), nil
	}

	allowed := f.perms.AllowedTools(ctx, clientID)
	body, total, kept, err := filterToolsBody(resp.Body, allowed)
	if err != nil {
		return nil, err
	}
	if body == nil {
		// No result to filter (JSON-RPC error response).
		return gateway.ResponseOutput(resp), nil
	}

	f.logger.Info("filtered tools/list",
		"client_id", clientID,
		"total", total,
		"kept", kept,
	)
	return gateway.ResponseOutput(&gateway.Envelope{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       body,
	}), nil
}

func (f *ResponseFilter) FailClosed(ev *gateway.Event, err error) *gateway.Output {
	var id json.RawMessage
	if ev != nil && ev.MCP.GatewayResponse != nil {
		id = messageID(ev.MCP.GatewayResponse.Body)
	}
	return denyAllTools(id, AuthErrInterceptor)
}

// isToolsListExchange reports whether the intercepted response answers
// a tools/list request. The request body decides when the Gateway sent
// it; otherwise the response must carry a result.tools array.
func isToolsListExchange(ev *gateway.Event) bool {
	if req := ev.MCP.GatewayRequest; req != nil && len(req.Body) > 0 {
		if body, err := gateway.DecodeBody(req.Body); err == nil {
			if parsed, err := ParseRequest(body); err == nil {
				_, ok := parsed.Call.(ToolsListCall)
				return ok
			}
		}
	}

	body, err := gateway.DecodeBody(ev.MCP.GatewayResponse.Body)
	if err != nil {
		return false
	}
	var msg struct {
		Result struct {
			Tools json.RawMessage `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return false
	}
	return len(msg.Result.Tools) > 0 && msg.Result.Tools[0] == '['
}

// filterToolsBody keeps the tools whose logical name is allowed, in
// their original order. Every other field of the envelope and of the
// result is preserved. A nil body with a nil error means the response
// has no result to filter.
func filterToolsBody(raw json.RawMessage, allowed permission.ToolSet) (body json.RawMessage, total, kept int, err error) {
	decoded, err := gateway.DecodeBody(raw)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("tools/list response: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(decoded, &envelope); err != nil {
		return nil, 0, 0, fmt.Errorf("tools/list response: %w", err)
	}
	rawResult, ok := envelope["result"]
	if !ok {
		return nil, 0, 0, nil
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(rawResult, &result); err != nil {
		return nil, 0, 0, fmt.Errorf("tools/list result: %w", err)
	}
	var tools []json.RawMessage
	if rawTools, ok := result["tools"]; ok {
		if err := json.Unmarshal(rawTools, &tools); err != nil {
			return nil, 0, 0, fmt.Errorf("tools/list tools: %w", err)
		}
	}

	filtered := make([]json.RawMessage, 0, len(tools))
	for _, t := range tools {
		var desc struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(t, &desc); err != nil {
			continue
		}
		if allowed.Has(toolname.Normalize(desc.Name)) {
			filtered = append(filtered, t)
		}
	}

	if result["tools"], err = json.Marshal(filtered); err != nil {
		return nil, 0, 0, err
	}
	if envelope["result"], err = json.Marshal(result); err != nil {
		return nil, 0, 0, err
	}
	body, err = json.Marshal(envelope)
	if err != nil {
		return nil, 0, 0, err
	}
	return body, len(tools), len(filtered), nil
}

// denyAllTools builds a tools/list response with no tools, tagged with
// the reason in the X-Auth-Error header.
func denyAllTools(id json.RawMessage, reason string) *gateway.Output {
	body := map[string]any{
		"jsonrpc": "2.0",
		"result":  map[string]any{"tools": []any{}},
	}
	if len(id) > 0 {
		body["id"] = id
	}
	data, _ := json.Marshal(body)
	return gateway.ResponseOutput(&gateway.Envelope{
		StatusCode: 200,
		Headers: gateway.Headers{
			headerContentType: contentTypeJSON,
			HeaderAuthError:   reason,
		},
		Body: data,
	})
}
