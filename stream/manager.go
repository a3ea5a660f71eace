// Package stream fans out durable per-session events to live SSE
// subscribers. It mirrors the role transport/server/base.Session played in
// the teacher (buffer-then-write to a single io.Writer), generalized to a
// registry of many concurrent subscribers per session backed by a pluggable
// eventstore.Store rather than an in-process slice.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/mutablelogic/mcp-streamhttp/eventstore"
	"github.com/mutablelogic/mcp-streamhttp/internal/metrics"
)

// DefaultBufferSize is the default per-subscriber channel capacity before
// drop-oldest eviction kicks in (SPEC_FULL.md §12): a slow consumer loses
// history and never blocks the publisher.
const DefaultBufferSize = 64

// DefaultKeepaliveInterval is how often the Manager emits a comment-only
// keepalive frame to every live subscriber of a session.
const DefaultKeepaliveInterval = 15 * time.Second

// Manager owns the live fan-out of each session's event stream to any number
// of concurrent SSE subscribers of that session. Durability is delegated to an
// eventstore.Store: every real message is stored before it is published,
// per spec.md's "store then publish" ordering guarantee.
type Manager struct {
	mu          sync.Mutex
	store       eventstore.Store
	subscribers map[string]map[*Subscription]struct{}
	bufferSize  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithBufferSize overrides DefaultBufferSize.
func WithBufferSize(n int) Option {
	return func(m *Manager) { m.bufferSize = n }
}

// NewManager constructs a Manager backed by store.
func NewManager(store eventstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		subscribers: make(map[string]map[*Subscription]struct{}),
		bufferSize:  DefaultBufferSize,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Publish durably appends payload to sessionID's event log, then fans the
// resulting Event out to every live subscriber. The append always happens
// first: a subscriber can never observe an event that a concurrent
// Last-Event-ID replay would fail to find in the store.
func (m *Manager) Publish(ctx context.Context, sessionID string, kind eventstore.Kind, payload []byte) (eventstore.Event, error) {
	id, err := m.store.Append(ctx, sessionID, kind, payload)
	if err != nil {
		return eventstore.Event{}, err
	}
	ev := eventstore.Event{
		ID:        id,
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Kind:      kind,
		Payload:   payload,
	}
	metrics.EventsAppended.Inc()
	m.broadcast(sessionID, ev)
	return ev, nil
}

// Keepalive sends a non-durable comment-only frame to every live subscriber
// of sessionID without touching the event log.
func (m *Manager) Keepalive(sessionID string) {
	m.broadcast(sessionID, eventstore.Event{
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Kind:      eventstore.KindKeepalive,
	})
}

func (m *Manager) broadcast(sessionID string, ev eventstore.Event) {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subscribers[sessionID]))
	for sub := range m.subscribers[sessionID] {
		subs = append(subs, sub)
	}
	m.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(ev)
	}
}

// Subscribe registers a new live subscriber for sessionID. Callers MUST call
// Close on the returned Subscription when the connection ends.
func (m *Manager) Subscribe(sessionID string) *Subscription {
	sub := newSubscription(m.bufferSize)
	m.mu.Lock()
	if m.subscribers[sessionID] == nil {
		m.subscribers[sessionID] = make(map[*Subscription]struct{})
	}
	m.subscribers[sessionID][sub] = struct{}{}
	m.mu.Unlock()
	metrics.SSESubscribers.Inc()
	sub.onClose = func() {
		m.mu.Lock()
		delete(m.subscribers[sessionID], sub)
		if len(m.subscribers[sessionID]) == 0 {
			delete(m.subscribers, sessionID)
		}
		m.mu.Unlock()
		metrics.SSESubscribers.Dec()
	}
	return sub
}

// SubscriberCount reports how many live subscribers sessionID currently has,
// chiefly for tests and metrics.
func (m *Manager) SubscriberCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers[sessionID])
}

// ReplayAfter returns buffered events for sessionID newer than lastID, for
// Last-Event-ID reconnect replay (spec.md §8 scenario 4).
func (m *Manager) ReplayAfter(ctx context.Context, sessionID string, lastID uint64) ([]eventstore.Event, error) {
	return m.store.ReadAfter(ctx, sessionID, lastID, 0)
}

// Purge drops a session's durable log and disconnects every live subscriber.
func (m *Manager) Purge(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	subs := m.subscribers[sessionID]
	delete(m.subscribers, sessionID)
	m.mu.Unlock()
	for sub := range subs {
		sub.Close()
	}
	return m.store.Purge(ctx, sessionID)
}
