// Package session implements the MCP session registry: identity, lifecycle
// gating, TTL expiry and per-session typed state, per SPEC_FULL.md §4.1.
package session

import (
	"encoding/json"
	"sync"
	"time"
)

// State is the lifecycle state of a session: Created -> Initialized -> Terminal.
type State int

const (
	// Created is the state a session is in immediately after initialize,
	// before the client has sent notifications/initialized.
	Created State = iota
	// Initialized is the state after notifications/initialized was observed.
	Initialized
	// Expired is a terminal state reached when the session outlives its TTL.
	Expired
	// Deleted is a terminal state reached via explicit HTTP DELETE.
	Deleted
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Initialized:
		return "initialized"
	case Expired:
		return "expired"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Capabilities is the truthful snapshot of server features advertised at
// initialize time. Keys match the wire capability object (camelCase).
type Capabilities struct {
	ToolsListChanged      bool `json:"toolsListChanged"`
	ResourcesSubscribe    bool `json:"resourcesSubscribe"`
	ResourcesListChanged  bool `json:"resourcesListChanged"`
	PromptsListChanged    bool `json:"promptsListChanged"`
	Logging               bool `json:"logging"`
}

// Record is the persisted representation of a session, the unit every
// Store backend (memory/sqlite/redis) reads and writes. It carries no
// concurrency primitives; those live only in the in-process Handle.
type Record struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	TTL            time.Duration   `json:"ttl"`
	ProtocolVer    string          `json:"protocolVersion"`
	Capabilities   Capabilities    `json:"capabilities"`
	State          State           `json:"state"`
	StateMap       map[string]json.RawMessage `json:"state_map"`
}

// expiredAt reports whether the record is past its TTL as of now.
func (r *Record) expiredAt(now time.Time) bool {
	if r.TTL <= 0 {
		return false
	}
	return now.After(r.LastActivityAt.Add(r.TTL))
}

// Handle is a borrowed, concurrency-safe view over a session's mutable
// fields, returned by Registry.Get. It does not own the underlying record;
// the registry's backing Store does.
type Handle struct {
	mu       sync.Mutex
	registry *Registry
	record   Record
}

// ID returns the session's server-assigned identifier.
func (h *Handle) ID() string { return h.record.ID }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record.State
}

// Initialized reports whether notifications/initialized has been observed.
func (h *Handle) Initialized() bool {
	return h.State() == Initialized
}

// Capabilities returns the capability snapshot advertised for this session.
func (h *Handle) Capabilities() Capabilities {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record.Capabilities
}

// ProtocolVersion returns the negotiated protocol version.
func (h *Handle) ProtocolVersion() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record.ProtocolVer
}
