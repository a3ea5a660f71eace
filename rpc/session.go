package rpc

import (
	"context"
	"encoding/json"

	jsonrpc "github.com/mutablelogic/mcp-streamhttp"
	"github.com/mutablelogic/mcp-streamhttp/notify"
	"github.com/mutablelogic/mcp-streamhttp/session"
)

// SessionContext is the borrowed view of the calling session a
// Handler sees via WithSession/SessionFromContext. It never owns the
// session; the session.Registry does. It also carries the notification
// broadcaster for the session's stream and accessors onto the session's
// typed state map, so a Handler can push progress/log notifications and
// read or write per-session state without reaching past its SessionContext
// into transport internals.
type SessionContext struct {
	Handle      *session.Handle
	Broadcaster *notify.Broadcaster

	registry *session.Registry
}

// WithSession attaches a SessionContext to ctx, along with the jsonrpc
// package's own session-id marker for code that only needs the bare id.
// registry resolves the SetState/GetState/RemoveState accessors against the
// same Store the transport's Registry uses; broadcaster may be nil for
// transports that don't support pushing notifications.
func WithSession(ctx context.Context, handle *session.Handle, registry *session.Registry, broadcaster *notify.Broadcaster) context.Context {
	ctx = context.WithValue(ctx, jsonrpc.SessionKey, handle.ID())
	return context.WithValue(ctx, sessionContextKey{}, &SessionContext{
		Handle:      handle,
		Broadcaster: broadcaster,
		registry:    registry,
	})
}

type sessionContextKey struct{}

// SessionFromContext returns the SessionContext attached by WithSession, if
// any. Handlers that don't need session state can ignore the second value.
func SessionFromContext(ctx context.Context) (*SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey{}).(*SessionContext)
	return sc, ok
}

// ID returns the session id, satisfying middleware.SessionView.
func (s *SessionContext) ID() string {
	return s.Handle.ID()
}

// SetState writes a single key in this session's typed state map (the
// session's "(c) accessors to the session's typed state map").
func (s *SessionContext) SetState(ctx context.Context, key string, value interface{}) error {
	return s.registry.SetState(ctx, s.Handle.ID(), key, value)
}

// SetStateRaw writes a pre-marshaled value, used by middleware.ApplyInjection
// so a middleware's staged Injection writes don't get re-marshaled.
func (s *SessionContext) SetStateRaw(ctx context.Context, key string, value json.RawMessage) error {
	return s.registry.SetState(ctx, s.Handle.ID(), key, value)
}

// GetState reads a single key from this session's typed state map into out.
func (s *SessionContext) GetState(ctx context.Context, key string, out interface{}) (bool, error) {
	return s.registry.GetState(ctx, s.Handle.ID(), key, out)
}

// RemoveState deletes a single key from this session's typed state map.
func (s *SessionContext) RemoveState(ctx context.Context, key string) error {
	return s.registry.RemoveState(ctx, s.Handle.ID(), key)
}

// Progress is a convenience wrapper over Broadcaster.Progress scoped to this
// session; a no-op if no broadcaster is attached.
func (s *SessionContext) Progress(ctx context.Context, params notify.ProgressParams) error {
	if s.Broadcaster == nil {
		return nil
	}
	return s.Broadcaster.Progress(ctx, s.Handle.ID(), params)
}
