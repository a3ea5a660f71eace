// Package middleware implements the before/after chain that wraps every
// dispatcher call: auth, rate limiting and policy checks run here, never
// inside a handler, generalizing the teacher's single-purpose
// transport.Interceptor into an ordered chain with short-circuiting.
package middleware

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mutablelogic/mcp-streamhttp/mcperror"
)

// SessionView is the read/write abstraction over session state a Middleware
// sees, so it never depends on the concrete session.Registry. It is nil for
// "initialize" (no session exists yet) and non-nil for every other call.
type SessionView interface {
	ID() string
	GetState(ctx context.Context, key string, out interface{}) (bool, error)
	SetStateRaw(ctx context.Context, key string, value json.RawMessage) error
}

// Injection collects state writes a middleware wants applied to session
// state. The writes are only actually applied if a session exists by the
// time Before finishes (for "initialize" that means after session
// creation) — a middleware writing into Injection before a session exists
// does not lose the write, it is simply deferred.
type Injection struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
}

// NewInjection returns an empty Injection.
func NewInjection() *Injection {
	return &Injection{values: make(map[string]json.RawMessage)}
}

// Set stages a state-map write, marshaling value now so a later failure to
// apply it (e.g. a vanished session) never surfaces as a marshal error.
func (i *Injection) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.values[key] = data
	return nil
}

func (i *Injection) entries() map[string]json.RawMessage {
	i.mu.Lock()
	defer i.mu.Unlock()
	cp := make(map[string]json.RawMessage, len(i.values))
	for k, v := range i.values {
		cp[k] = v
	}
	return cp
}

// ApplyInjection writes every staged key in injection to view's session
// state. Called once a session is known to exist: by Chain.Call for the
// common case (session already existed when Before ran), and explicitly by
// the transport handshake path for "initialize", after it creates the
// session Before ran without.
func ApplyInjection(ctx context.Context, view SessionView, injection *Injection) error {
	if view == nil || injection == nil {
		return nil
	}
	for key, value := range injection.entries() {
		if err := view.SetStateRaw(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Middleware observes or short-circuits a JSON-RPC call. Before runs in
// registration order; a non-nil error short-circuits the chain and skips the
// handler entirely. After runs in reverse registration order once the
// handler (or an earlier short-circuit) has produced a result, so the first
// middleware registered is the last to see the outcome — the same FIFO-in,
// LIFO-out shape an http.Handler chain uses. view is the session_view_opt:
// nil during "initialize" before the session exists, non-nil otherwise.
type Middleware interface {
	Before(ctx context.Context, method string, params json.RawMessage, view SessionView, injection *Injection) (context.Context, *mcperror.Error)
	After(ctx context.Context, method string, view SessionView, injection *Injection, result interface{}, callErr *mcperror.Error) (interface{}, *mcperror.Error)
}

// Chain runs an ordered list of Middleware around a terminal call.
type Chain struct {
	stack []Middleware
}

// NewChain builds a Chain from the given middleware, applied in the order
// given.
func NewChain(mw ...Middleware) *Chain {
	return &Chain{stack: mw}
}

// RunBefore runs every middleware's Before hook in order, stopping at the
// first error. It returns the middleware that actually ran (so RunAfter can
// unwind only those) and the Injection they wrote into, regardless of
// whether a session existed yet.
func (c *Chain) RunBefore(ctx context.Context, method string, params json.RawMessage, view SessionView) (context.Context, *Injection, []Middleware, *mcperror.Error) {
	injection := NewInjection()
	ran := make([]Middleware, 0, len(c.stack))
	for _, mw := range c.stack {
		var mErr *mcperror.Error
		ctx, mErr = mw.Before(ctx, method, params, view, injection)
		ran = append(ran, mw)
		if mErr != nil {
			return ctx, injection, ran, mErr
		}
	}
	return ctx, injection, ran, nil
}

// RunAfter runs the After hook of every middleware in ran, in reverse order.
func (c *Chain) RunAfter(ctx context.Context, method string, view SessionView, injection *Injection, ran []Middleware, result interface{}, callErr *mcperror.Error) (interface{}, *mcperror.Error) {
	for i := len(ran) - 1; i >= 0; i-- {
		result, callErr = ran[i].After(ctx, method, view, injection, result, callErr)
	}
	return result, callErr
}

// Call runs the chain's Before hooks, applies any Injection writes (view is
// already known to exist for every caller of Call — the one case where it
// doesn't, "initialize", is handled by the transport calling RunBefore,
// creating the session, then ApplyInjection and RunAfter directly), then
// next, then the chain's After hooks in reverse order.
func (c *Chain) Call(ctx context.Context, method string, params json.RawMessage, view SessionView, next func(ctx context.Context) (interface{}, *mcperror.Error)) (interface{}, *mcperror.Error) {
	ctx, injection, ran, mErr := c.RunBefore(ctx, method, params, view)
	if mErr != nil {
		return c.RunAfter(ctx, method, view, injection, ran, nil, mErr)
	}
	if err := ApplyInjection(ctx, view, injection); err != nil {
		return c.RunAfter(ctx, method, view, injection, ran, nil, mcperror.InternalErr(err))
	}
	result, callErr := next(ctx)
	return c.RunAfter(ctx, method, view, injection, ran, result, callErr)
}
