package middleware

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mutablelogic/mcp-streamhttp/mcperror"
)

// tokenBucket is a minimal fixed-rate limiter. No example in the retrieved
// pack imports a rate-limiting library (golang-tools only leaves a TODO
// referencing golang.org/x/time/rate without ever importing it), so this is
// implemented directly against the standard library.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	refill   float64 // tokens per second
	lastFill time.Time
}

func newTokenBucket(max float64, refillPerSecond float64) *tokenBucket {
	return &tokenBucket{tokens: max, max: max, refill: refillPerSecond, lastFill: time.Now()}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.lastFill = now
	b.tokens += elapsed * b.refill
	if b.tokens > b.max {
		b.tokens = b.max
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimitMiddleware enforces a per-session requests-per-second budget
// using a bucket keyed by the session's view id. It never creates a session
// itself, so for "initialize" (session_view_opt == nil) it simply lets the
// call through — there is nothing to key a bucket on yet.
type RateLimitMiddleware struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	max     float64
	refill  float64
}

// NewRateLimitMiddleware builds a RateLimitMiddleware allowing burstSize
// requests with steady-state refillPerSecond.
func NewRateLimitMiddleware(burstSize, refillPerSecond float64) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		buckets: make(map[string]*tokenBucket),
		max:     burstSize,
		refill:  refillPerSecond,
	}
}

func (m *RateLimitMiddleware) bucketFor(id string) *tokenBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[id]
	if !ok {
		b = newTokenBucket(m.max, m.refill)
		m.buckets[id] = b
	}
	return b
}

// Before rejects the call once the session's bucket is empty.
func (m *RateLimitMiddleware) Before(ctx context.Context, method string, params json.RawMessage, view SessionView, injection *Injection) (context.Context, *mcperror.Error) {
	if view == nil {
		return ctx, nil
	}
	id := view.ID()
	if !m.bucketFor(id).allow() {
		return ctx, mcperror.RateLimited("rate limit exceeded for session " + id)
	}
	return ctx, nil
}

// After is a no-op: rate limiting only gates entry.
func (m *RateLimitMiddleware) After(ctx context.Context, method string, view SessionView, injection *Injection, result interface{}, callErr *mcperror.Error) (interface{}, *mcperror.Error) {
	return result, callErr
}
