// Package eventstore implements the durable, ordered per-session event log
// described in SPEC_FULL.md §4.2: append assigns a strictly increasing id and
// MUST be durable before the stream manager fans the event out to any live
// subscriber ("store then publish").
package eventstore

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes a real protocol frame from a comment-only keepalive.
type Kind string

const (
	// KindMessage is a JSON-RPC frame (request/response/notification).
	KindMessage Kind = "message"
	// KindKeepalive is an SSE comment carrying no JSON-RPC payload.
	KindKeepalive Kind = "keepalive"
)

// Event is one ordered item in a session's outbound stream.
type Event struct {
	ID        uint64    `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	Kind      Kind      `json:"kind"`
	Payload   []byte    `json:"payload"`
}

// ErrNotFound is returned when a session has no event log (e.g. never
// written to, or already purged).
var ErrNotFound = errors.New("eventstore: session not found")

// Store is the pluggable event-log backend. All methods are safe for
// concurrent use by multiple sessions; ordering is only guaranteed within a
// single session's id sequence (spec.md §8 "Event monotonicity").
type Store interface {
	// Append assigns the next id for sessionID and durably persists the
	// event before returning. The returned id is strictly greater than every
	// id previously assigned to the same session by this process.
	Append(ctx context.Context, sessionID string, kind Kind, payload []byte) (uint64, error)

	// ReadAfter returns events for sessionID with id > lastID, ascending, up
	// to limit items (0 means no limit).
	ReadAfter(ctx context.Context, sessionID string, lastID uint64, limit int) ([]Event, error)

	// Recent returns the most recent events for sessionID, ascending, up to
	// limit items. Implementations with eventually-consistent storage MUST
	// use a strongly consistent read path here (spec.md §4.2).
	Recent(ctx context.Context, sessionID string, limit int) ([]Event, error)

	// Purge deletes every event for sessionID.
	Purge(ctx context.Context, sessionID string) error

	// Expire deletes events older than the given cutoff across all sessions.
	Expire(ctx context.Context, olderThan time.Time) error
}
