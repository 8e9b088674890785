package interceptor

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	"github.com/agentcore-samples/toolgate/internal/gateway"
)

// JSONRPCMessage is a minimal parse of a JSON-RPC 2.0 message.
// Fields are kept as json.RawMessage so that unknown MCP fields pass
// through untouched.
type JSONRPCMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Request is an MCP request parsed once at the boundary. Call holds one
// of InitializeCall, ToolsListCall, ToolsCallCall or OtherCall.
type Request struct {
	ID   json.RawMessage
	Call Call
}

// Call is the method-specific part of a Request.
type Call interface {
	Method() string
}

type InitializeCall struct {
	Params json.RawMessage
}

type ToolsListCall struct {
	Cursor string
}

// ToolsCallCall is a tools/call invocation. Name carries the Gateway
// target prefix.
type ToolsCallCall struct {
	Name      string
	Arguments json.RawMessage
}

type OtherCall struct {
	Name string
}

func (InitializeCall) Method() string { return string(mcp.MethodInitialize) }
func (ToolsListCall) Method() string  { return string(mcp.MethodToolsList) }
func (ToolsCallCall) Method() string  { return string(mcp.MethodToolsCall) }
func (c OtherCall) Method() string    { return c.Name }

// ParseRequest parses a request body. Malformed JSON and malformed
// tools/call params both report gateway.ErrInvalidBody.
func ParseRequest(body json.RawMessage) (*Request, error) {
	var msg JSONRPCMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidBody, err)
	}

	req := &Request{ID: msg.ID}
	switch mcp.MCPMethod(msg.Method) {
	case mcp.MethodInitialize:
		req.Call = InitializeCall{Params: msg.Params}
	case mcp.MethodToolsList:
		req.Call = ToolsListCall{Cursor: gjson.GetBytes(msg.Params, "cursor").String()}
	case mcp.MethodToolsCall:
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &p); err != nil {
				return nil, fmt.Errorf("%w: tools/call params: %v", gateway.ErrInvalidBody, err)
			}
		}
		req.Call = ToolsCallCall{Name: p.Name, Arguments: p.Arguments}
	default:
		req.Call = OtherCall{Name: msg.Method}
	}
	return req, nil
}

// messageID extracts the JSON-RPC id from a possibly string-encoded
// body. It returns nil when the body or id is missing.
func messageID(raw json.RawMessage) json.RawMessage {
	body, err := gateway.DecodeBody(raw)
	if err != nil {
		return nil
	}
	id := gjson.GetBytes(body, "id")
	if !id.Exists() {
		return nil
	}
	return json.RawMessage(id.Raw)
}

// idOrNull returns id, or JSON null for responses that must carry an id.
func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
