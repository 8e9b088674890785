package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// OutputVersion is the interceptor output schema version the Gateway expects.
const OutputVersion = "1.0"

// ErrInvalidBody is returned when an envelope body is not a JSON value,
// or is a JSON string that does not itself contain JSON.
var ErrInvalidBody = errors.New("invalid JSON body")

// Event is the payload the Gateway hands to an interceptor function.
// Request interceptors receive only GatewayRequest; response interceptors
// receive both, so the caller's headers are available when filtering.
type Event struct {
	MCP EventMCP `json:"mcp"`
}

type EventMCP struct {
	GatewayRequest  *Envelope `json:"gatewayRequest,omitempty"`
	GatewayResponse *Envelope `json:"gatewayResponse,omitempty"`
}

// Envelope is one side of an intercepted exchange. Body is kept raw so
// that pass-through paths return exactly what the Gateway sent.
type Envelope struct {
	StatusCode int             `json:"statusCode,omitempty"`
	Headers    Headers         `json:"headers,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Output is what an interceptor returns to the Gateway. Exactly one of
// the transformed envelopes is set.
type Output struct {
	Version string    `json:"interceptorOutputVersion"`
	MCP     OutputMCP `json:"mcp"`
}

type OutputMCP struct {
	TransformedGatewayRequest  *Envelope `json:"transformedGatewayRequest,omitempty"`
	TransformedGatewayResponse *Envelope `json:"transformedGatewayResponse,omitempty"`
}

// ParseEvent decodes a raw interceptor event.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

// Authorization returns the caller's Authorization header from the
// request side of the event, which is present for both interception points.
func (e *Event) Authorization() string {
	if e == nil || e.MCP.GatewayRequest == nil {
		return ""
	}
	return e.MCP.GatewayRequest.Headers.Get("Authorization")
}

// RequestOutput wraps a transformed request for the Gateway to forward.
func RequestOutput(env *Envelope) *Output {
	return &Output{
		Version: OutputVersion,
		MCP:     OutputMCP{TransformedGatewayRequest: env},
	}
}

// ResponseOutput wraps a transformed (or synthesized) response.
func ResponseOutput(env *Envelope) *Output {
	return &Output{
		Version: OutputVersion,
		MCP:     OutputMCP{TransformedGatewayResponse: env},
	}
}

// DecodeBody returns the JSON document carried by an envelope body. The
// Gateway sends bodies either as JSON objects or as strings holding JSON.
func DecodeBody(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrInvalidBody
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, ErrInvalidBody
		}
		trimmed = []byte(strings.TrimSpace(s))
	}
	if !json.Valid(trimmed) {
		return nil, ErrInvalidBody
	}
	return json.RawMessage(trimmed), nil
}
