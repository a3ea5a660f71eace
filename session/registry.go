package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mutablelogic/mcp-streamhttp/internal/metrics"
)

// DefaultTTL is the default session idle TTL (spec.md §3).
const DefaultTTL = 5 * time.Minute

// Registry is the authoritative owner of session identity and lifecycle. It
// never exposes ownership of a session to callers — only a borrowed Handle
// backed by a Get/Touch round trip against the configured Store.
type Registry struct {
	store Store
	ttl   time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides the default idle TTL for new sessions.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithStore overrides the default in-memory Store.
func WithStore(store Store) Option {
	return func(r *Registry) { r.store = store }
}

// NewRegistry constructs a Registry, defaulting to an in-memory Store and
// the spec's default 5-minute TTL.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{store: NewMemoryStore(), ttl: DefaultTTL}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create generates a server-assigned UUIDv7 session id, persists a fresh
// Created-state record, and returns the id. The id is time-ordered, per
// spec.md §3 invariant (i): ids are never client-chosen.
func (r *Registry) Create(ctx context.Context, caps Capabilities, protocolVersion string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system clock/random source is unusable;
		// fall back to NewRandom (v4) rather than failing session creation.
		id = uuid.New()
	}
	now := time.Now()
	rec := Record{
		ID:             id.String(),
		CreatedAt:      now,
		LastActivityAt: now,
		TTL:            r.ttl,
		ProtocolVer:    protocolVersion,
		Capabilities:   caps,
		State:          Created,
		StateMap:       map[string]json.RawMessage{},
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return "", err
	}
	metrics.ActiveSessions.Inc()
	return rec.ID, nil
}

// Get resolves id to a Handle. It returns ErrNotFound if the id is unknown
// or has passed its TTL (spec.md §3 invariant (ii)).
func (r *Registry) Get(ctx context.Context, id string) (*Handle, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.State != Deleted && rec.State != Expired && rec.expiredAt(time.Now()) {
		_ = r.store.SetState(ctx, id, Expired)
		return nil, ErrNotFound
	}
	if rec.State == Expired || rec.State == Deleted {
		return nil, ErrNotFound
	}
	return &Handle{registry: r, record: rec}, nil
}

// Touch updates last-activity for id. MUST be called on every request that
// references an existing session (spec.md §4.1).
func (r *Registry) Touch(ctx context.Context, id string) error {
	return r.store.Touch(ctx, id, time.Now())
}

// MarkInitialized flips the initialized gate. Idempotent: calling it on an
// already-Initialized session is a no-op.
func (r *Registry) MarkInitialized(ctx context.Context, id string) error {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.State == Initialized {
		return nil
	}
	if rec.State != Created {
		return nil
	}
	return r.store.SetState(ctx, id, Initialized)
}

// Delete explicitly terminates a session (HTTP DELETE). Deleting an unknown
// or already-deleted session returns ErrNotFound so callers can surface 404.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, id); err != nil {
		return ErrNotFound
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	metrics.ActiveSessions.Dec()
	return nil
}

// ExpireDue returns ids past TTL so the caller (a periodic sweeper) can remove
// them; sweeping itself is idempotent since ExpireDue only reports state, it
// does not mutate it.
func (r *Registry) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	return r.store.ExpireDue(ctx, now)
}

// Sweep marks every due session Expired. Safe to call repeatedly/concurrently.
func (r *Registry) Sweep(ctx context.Context) ([]string, error) {
	due, err := r.ExpireDue(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	for _, id := range due {
		_ = r.store.SetState(ctx, id, Expired)
		metrics.ActiveSessions.Dec()
	}
	return due, nil
}

// SetState writes a single per-session state-map key.
func (r *Registry) SetState(ctx context.Context, id, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.store.PutStateValue(ctx, id, key, data)
}

// GetState reads a single per-session state-map key into out.
func (r *Registry) GetState(ctx context.Context, id, key string, out interface{}) (bool, error) {
	data, ok, err := r.store.GetStateValue(ctx, id, key)
	if err != nil || !ok {
		return ok, err
	}
	return true, json.Unmarshal(data, out)
}

// RemoveState deletes a single per-session state-map key.
func (r *Registry) RemoveState(ctx context.Context, id, key string) error {
	return r.store.RemoveStateValue(ctx, id, key)
}
