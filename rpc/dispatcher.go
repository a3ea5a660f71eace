// Package rpc is the single place that owns JSON-RPC protocol shaping.
// Handlers never construct *jsonrpc.Response or *jsonrpc.Error themselves;
// they return a result value or an *mcperror.Error, and the Dispatcher maps
// that to the wire shape, generalizing the teacher's
// transport/server/base.Handler.HandleMessage into a registry of named
// methods instead of one hand-rolled switch.
package rpc

import (
	"context"
	"encoding/json"

	jsonrpc "github.com/mutablelogic/mcp-streamhttp"
	"github.com/mutablelogic/mcp-streamhttp/internal/metrics"
	"github.com/mutablelogic/mcp-streamhttp/mcperror"
)

// Handler serves one JSON-RPC method. params is the raw, still-encoded
// request params; ctx carries a *SessionContext when the request targets a
// known session (see WithSession). A nil result with a nil error is only
// valid for a notification.
type Handler func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error)

// Dispatcher routes JSON-RPC requests and notifications to registered
// Handlers and owns the mcperror.Kind -> JSON-RPC code mapping.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds method to handler, replacing any prior registration.
func (d *Dispatcher) Register(method string, handler Handler) {
	d.handlers[method] = handler
}

// Methods returns the currently registered method names, chiefly for
// capability computation.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	return out
}

// KindToCode is the authoritative mapping from a domain error Kind to its
// JSON-RPC wire code (spec.md §4.5). It is the only place in the module that
// performs this mapping.
func KindToCode(kind mcperror.Kind) int {
	switch kind {
	case mcperror.InvalidParameters:
		return jsonrpc.InvalidParams
	case mcperror.MethodNotFound:
		return jsonrpc.MethodNotFound
	case mcperror.LifecycleViolation:
		return jsonrpc.InvalidRequest
	case mcperror.SessionErr:
		return jsonrpc.SessionError
	case mcperror.ToolExecution:
		return jsonrpc.ToolExecutionError
	case mcperror.AuthErr:
		return jsonrpc.MiddlewareAuthError
	case mcperror.PolicyErr:
		return jsonrpc.MiddlewarePolicyError
	case mcperror.RateLimitErr:
		return jsonrpc.MiddlewareRateLimitError
	default:
		return jsonrpc.InternalError
	}
}

func toErrorResponse(id jsonrpc.RequestId, err *mcperror.Error) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, KindToCode(err.Kind), err.Message, err.Data)
}

// Dispatch handles a single request or notification message. For a
// notification (request.Id == nil is not representable by jsonrpc.Request,
// so callers use DispatchNotification instead), it always returns a
// *jsonrpc.Response; the caller decides whether to frame/send it.
func (d *Dispatcher) Dispatch(ctx context.Context, request *jsonrpc.Request) *jsonrpc.Response {
	handler, ok := d.handlers[request.Method]
	if !ok {
		metrics.RequestsDispatched.WithLabelValues(request.Method, "not_found").Inc()
		return jsonrpc.NewMethodNotFound(request.Id, request.Method)
	}
	result, mErr := handler(ctx, request.Method, request.Params)
	if mErr != nil {
		metrics.RequestsDispatched.WithLabelValues(request.Method, "error").Inc()
		return toErrorResponse(request.Id, mErr)
	}
	data, err := json.Marshal(result)
	if err != nil {
		metrics.RequestsDispatched.WithLabelValues(request.Method, "error").Inc()
		return jsonrpc.NewInternalError(request.Id, err)
	}
	metrics.RequestsDispatched.WithLabelValues(request.Method, "ok").Inc()
	return jsonrpc.NewResponse(request.Id, data)
}

// DispatchNotification handles a notification: no response is ever produced,
// but a failing handler still needs somewhere to go, so the error (if any) is
// returned for the caller to log.
func (d *Dispatcher) DispatchNotification(ctx context.Context, notification *jsonrpc.Notification) *mcperror.Error {
	handler, ok := d.handlers[notification.Method]
	if !ok {
		return mcperror.New(mcperror.MethodNotFound, "no handler for "+notification.Method)
	}
	_, mErr := handler(ctx, notification.Method, notification.Params)
	return mErr
}

// DispatchBatch handles a jsonrpc.BatchRequest, returning a BatchResponse
// with exactly one entry per batch element, in order. A BatchRequest holds
// only id-carrying requests, so no element is ever a notification.
func (d *Dispatcher) DispatchBatch(ctx context.Context, batch jsonrpc.BatchRequest) jsonrpc.BatchResponse {
	responses := make(jsonrpc.BatchResponse, 0, len(batch))
	for _, request := range batch {
		responses = append(responses, d.Dispatch(ctx, request))
	}
	return responses
}
