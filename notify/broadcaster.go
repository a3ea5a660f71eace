package notify

import (
	"context"
	"fmt"

	jsonrpc "github.com/mutablelogic/mcp-streamhttp"
	"github.com/mutablelogic/mcp-streamhttp/eventstore"
	"github.com/mutablelogic/mcp-streamhttp/stream"
)

// Broadcaster pushes typed notifications into a session's event stream. It
// owns nothing about transport: callers elsewhere read the resulting events
// off stream.Manager and frame them for SSE or discard them if no stream is
// attached, matching how the teacher's Session.sendNotification built a
// *jsonrpc.Request with no id and handed it to SendData.
type Broadcaster struct {
	manager *stream.Manager
}

// NewBroadcaster wraps a stream.Manager.
func NewBroadcaster(manager *stream.Manager) *Broadcaster {
	return &Broadcaster{manager: manager}
}

func (b *Broadcaster) send(ctx context.Context, sessionID, method string, params interface{}) error {
	notification, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("notify: build %s: %w", method, err)
	}
	message := jsonrpc.NewNotificationMessage(notification)
	data, err := message.MarshalJSON()
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", method, err)
	}
	_, err = b.manager.Publish(ctx, sessionID, eventstore.KindMessage, data)
	return err
}

// Progress pushes a notifications/progress frame.
func (b *Broadcaster) Progress(ctx context.Context, sessionID string, params ProgressParams) error {
	return b.send(ctx, sessionID, MethodProgress, params)
}

// Log pushes a notifications/message frame.
func (b *Broadcaster) Log(ctx context.Context, sessionID string, params LogParams) error {
	return b.send(ctx, sessionID, MethodMessage, params)
}

// ResourceUpdated pushes a notifications/resources/updated frame.
func (b *Broadcaster) ResourceUpdated(ctx context.Context, sessionID string, params ResourceUpdatedParams) error {
	return b.send(ctx, sessionID, MethodResourceUpdated, params)
}

// ListChanged pushes the list_changed frame for scope, with no params
// (spec.md §5: these notifications carry an empty object).
func (b *Broadcaster) ListChanged(ctx context.Context, sessionID string, scope ListChangedScope) error {
	method := scope.Method()
	if method == "" {
		return fmt.Errorf("notify: unknown list-changed scope %q", scope)
	}
	return b.send(ctx, sessionID, method, struct{}{})
}

// Cancelled pushes a notifications/cancelled frame.
func (b *Broadcaster) Cancelled(ctx context.Context, sessionID string, params CancelledParams) error {
	return b.send(ctx, sessionID, MethodCancelled, params)
}

// SendRaw is an escape hatch for notification shapes not otherwise modeled,
// e.g. experimental or server-specific methods.
func (b *Broadcaster) SendRaw(ctx context.Context, sessionID, method string, params interface{}) error {
	return b.send(ctx, sessionID, method, params)
}
