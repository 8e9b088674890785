package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentcore-samples/toolgate/internal/gateway"
	"github.com/agentcore-samples/toolgate/internal/identity"
	"github.com/agentcore-samples/toolgate/internal/toolname"
)

const msgInvalidJSON = "Invalid JSON in request body"

var errNoRequest = errors.New("event has no gatewayRequest")

// RequestAuthorizer gates tools/call requests on the caller's Cognito
// groups. Listing and non-tool methods always pass; tools/list results
// are narrowed on the way back by ResponseFilter.
type RequestAuthorizer struct {
	logger *slog.Logger
}

func NewRequestAuthorizer(logger *slog.Logger) *RequestAuthorizer {
	return &RequestAuthorizer{logger: logger}
}

func (a *RequestAuthorizer) Intercept(_ context.Context, ev *gateway.Event) (*gateway.Output, error) {
	req := ev.MCP.GatewayRequest
	if req == nil {
		return nil, errNoRequest
	}

	body, err := gateway.DecodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseRequest(body)
	if err != nil {
		return nil, err
	}

	switch call := parsed.Call.(type) {
	case ToolsCallCall:
		groups := identity.Groups(ev.Authorization())
		group := ResolveGroup(groups)
		decision := AuthorizeCall(group, ParseActionType(call.Arguments))
		target, tool := toolname.Split(call.Name)

		if !decision.Allow {
			a.logger.Warn("tools/call denied",
				"tool", tool,
				"target", target,
				"group", group.String(),
				"reason", decision.Reason,
			)
			return denyCall(parsed.ID, decision.Reason), nil
		}
		a.logger.Info("tools/call allowed",
			"tool", tool,
			"target", target,
			"group", group.String(),
		)
	case ToolsListCall, InitializeCall, OtherCall:
		a.logger.Debug("request passed through", "method", call.Method())
	}

	return gateway.RequestOutput(&gateway.Envelope{
		Headers: req.Headers.Normalize(),
		Body:    body,
	}), nil
}

func (a *RequestAuthorizer) FailClosed(ev *gateway.Event, err error) *gateway.Output {
	var id json.RawMessage
	if ev != nil && ev.MCP.GatewayRequest != nil {
		id = messageID(ev.MCP.GatewayRequest.Body)
	}

	reason := msgInvalidJSON
	if !errors.Is(err, gateway.ErrInvalidBody) {
		reason = "Authorization error: " + err.Error()
	}
	return denyCall(id, reason)
}

// callToolDenial is a tools/call result reporting an authorization error.
type callToolDenial struct {
	IsError bool              `json:"isError"`
	Content []mcp.TextContent `json:"content"`
}

// denyCall short-circuits a request with a tools/call error result, as
// if the tool itself had reported the failure.
func denyCall(id json.RawMessage, reason string) *gateway.Output {
	body := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  callToolDenial  `json:"result"`
	}{
		JSONRPC: "2.0",
		ID:      idOrNull(id),
		Result: callToolDenial{
			IsError: true,
			Content: []mcp.TextContent{mcp.NewTextContent(reason)},
		},
	}
	data, _ := json.Marshal(body)
	return gateway.ResponseOutput(&gateway.Envelope{
		StatusCode: 200,
		Headers:    gateway.Headers{headerContentType: contentTypeJSON},
		Body:       data,
	})
}
