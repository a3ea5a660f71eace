package middleware

import (
	"context"
	"encoding/json"

	"github.com/mutablelogic/mcp-streamhttp/mcperror"
	"github.com/mutablelogic/mcp-streamhttp/transport/server/auth"
)

type bffGrantKey struct{}
type grantIDKey struct{}

// GrantFromContext returns the auth.Grant attached by AuthMiddleware, if any.
func GrantFromContext(ctx context.Context) (*auth.Grant, bool) {
	g, ok := ctx.Value(bffGrantKey{}).(*auth.Grant)
	return g, ok
}

// WithGrantID attaches the raw grant id read from the request (typically a
// cookie value, extracted by the transport before the middleware chain runs)
// so AuthMiddleware.GrantID has something to read without depending on
// net/http itself.
func WithGrantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, grantIDKey{}, id)
}

// GrantIDFromContext returns the id attached by WithGrantID, if any. Used as
// the default AuthMiddleware.GrantID function.
func GrantIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(grantIDKey{}).(string)
	return id, ok && id != ""
}

// AuthMiddleware rejects requests with no valid BFF grant id in context,
// reusing the teacher's durable grant store (auth.Store) rather than
// inventing a new credential format.
type AuthMiddleware struct {
	Store auth.Store
	// GrantID resolves the opaque grant id for a call, typically read from a
	// cookie by the transport layer and stashed in ctx before dispatch.
	GrantID func(ctx context.Context) (string, bool)
}

// Before loads and validates the grant, attaching it to the context for
// downstream handlers and middleware.
func (m *AuthMiddleware) Before(ctx context.Context, method string, params json.RawMessage, view SessionView, injection *Injection) (context.Context, *mcperror.Error) {
	grantID := m.GrantID
	if grantID == nil {
		grantID = GrantIDFromContext
	}
	id, ok := grantID(ctx)
	if !ok || id == "" {
		return ctx, mcperror.Unauthorized("missing authentication grant")
	}
	grant, err := m.Store.Get(ctx, id)
	if err != nil {
		return ctx, mcperror.Unauthorized("invalid or expired authentication grant")
	}
	_ = injection.Set("authSubject", grant.Subject)
	return context.WithValue(ctx, bffGrantKey{}, grant), nil
}

// After is a no-op: authentication does not inspect results.
func (m *AuthMiddleware) After(ctx context.Context, method string, view SessionView, injection *Injection, result interface{}, callErr *mcperror.Error) (interface{}, *mcperror.Error) {
	return result, callErr
}
