// Package interceptor implements the Gateway request and response
// interceptors that enforce per-client tool permissions.
package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"github.com/agentcore-samples/toolgate/internal/gateway"
)

// Interceptor transforms one Gateway event.
//
// Intercept returns the output to hand back to the Gateway. When it
// fails, the Handler asks FailClosed for the most restrictive output
// the interceptor can produce for that event.
type Interceptor interface {
	Intercept(ctx context.Context, ev *gateway.Event) (*gateway.Output, error)
	FailClosed(ev *gateway.Event, err error) *gateway.Output
}

// Mode pins which interceptor a Router uses.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeRequest  Mode = "request"
	ModeResponse Mode = "response"
)

// ParseMode maps a configuration value to a Mode, defaulting to auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeRequest, ModeResponse:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown interceptor mode %q", s)
}

// Router dispatches events to the request or response interceptor. In
// auto mode an event carrying gatewayResponse goes to the response side.
type Router struct {
	mode     Mode
	request  Interceptor
	response Interceptor
}

func NewRouter(mode Mode, request, response Interceptor) *Router {
	return &Router{mode: mode, request: request, response: response}
}

func (r *Router) pick(ev *gateway.Event) Interceptor {
	switch r.mode {
	case ModeRequest:
		return r.request
	case ModeResponse:
		return r.response
	}
	if ev != nil && ev.MCP.GatewayResponse != nil {
		return r.response
	}
	return r.request
}

func (r *Router) Intercept(ctx context.Context, ev *gateway.Event) (*gateway.Output, error) {
	return r.pick(ev).Intercept(ctx, ev)
}

func (r *Router) FailClosed(ev *gateway.Event, err error) *gateway.Output {
	return r.pick(ev).FailClosed(ev, err)
}

// Handler is the function entry point. It never returns an error: every
// failure, including a panic, becomes a fail-closed output.
type Handler struct {
	interceptor Interceptor
	logger      *slog.Logger
}

func NewHandler(i Interceptor, logger *slog.Logger) *Handler {
	return &Handler{interceptor: i, logger: logger}
}

// Handle processes one raw Gateway event.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (out *gateway.Output, err error) {
	start := time.Now()
	logger := h.logger.With("request_id", requestID(ctx))

	ev, parseErr := gateway.ParseEvent(raw)
	if parseErr != nil {
		logger.Error("unreadable interceptor event", "error", parseErr)
		return h.interceptor.FailClosed(&gateway.Event{}, parseErr), nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("interceptor panic", "panic", r)
			out = h.interceptor.FailClosed(ev, fmt.Errorf("internal error: %v", r))
			err = nil
		}
	}()

	out, ierr := h.interceptor.Intercept(ctx, ev)
	if ierr != nil {
		logger.Warn("interceptor failed closed", "error", ierr, "duration", time.Since(start))
		return h.interceptor.FailClosed(ev, ierr), nil
	}

	logger.Debug("interceptor invocation",
		"phase", phase(out),
		"duration", time.Since(start),
	)
	return out, nil
}

func phase(out *gateway.Output) string {
	if out != nil && out.MCP.TransformedGatewayResponse != nil {
		return "response"
	}
	return "request"
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
