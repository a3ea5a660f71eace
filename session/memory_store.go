package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mutablelogic/mcp-streamhttp/internal/collection"
)

// MemoryStore is the default in-memory Store, backed by a generic SyncMap
// keyed by session id, matching the teacher's collection.SyncMap usage for
// its own session table. Every mutation goes through SyncMap.Mutate and
// swaps in a freshly cloned *Record rather than editing the stored pointer's
// fields in place: two concurrent requests against the same session (spec
// allows concurrent calls per session) must never both write through the
// same *Record, or their StateMap writes race as a concurrent map write.
type MemoryStore struct {
	sessions *collection.SyncMap[string, *Record]
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: collection.NewSyncMap[string, *Record]()}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	cp := rec
	if cp.StateMap == nil {
		cp.StateMap = map[string]json.RawMessage{}
	}
	s.sessions.Put(cp.ID, &cp)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	rec, ok := s.sessions.Get(id)
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Touch(_ context.Context, id string, now time.Time) error {
	ok := s.sessions.Mutate(id, func(old *Record, present bool) (*Record, bool) {
		if !present {
			return nil, false
		}
		cp := cloneRecord(old)
		cp.LastActivityAt = now
		return &cp, true
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) SetState(_ context.Context, id string, state State) error {
	ok := s.sessions.Mutate(id, func(old *Record, present bool) (*Record, bool) {
		if !present {
			return nil, false
		}
		cp := cloneRecord(old)
		cp.State = state
		return &cp, true
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.sessions.Delete(id)
	return nil
}

func (s *MemoryStore) ExpireDue(_ context.Context, now time.Time) ([]string, error) {
	var due []string
	s.sessions.Range(func(id string, rec *Record) bool {
		if rec.State != Expired && rec.State != Deleted && rec.expiredAt(now) {
			due = append(due, id)
		}
		return true
	})
	return due, nil
}

func (s *MemoryStore) PutStateValue(_ context.Context, id, key string, value json.RawMessage) error {
	ok := s.sessions.Mutate(id, func(old *Record, present bool) (*Record, bool) {
		if !present {
			return nil, false
		}
		cp := cloneRecord(old)
		if cp.StateMap == nil {
			cp.StateMap = map[string]json.RawMessage{}
		}
		cp.StateMap[key] = value
		return &cp, true
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) GetStateValue(_ context.Context, id, key string) (json.RawMessage, bool, error) {
	rec, ok := s.sessions.Get(id)
	if !ok {
		return nil, false, ErrNotFound
	}
	cp := cloneRecord(rec)
	v, ok := cp.StateMap[key]
	return v, ok, nil
}

func (s *MemoryStore) RemoveStateValue(_ context.Context, id, key string) error {
	ok := s.sessions.Mutate(id, func(old *Record, present bool) (*Record, bool) {
		if !present {
			return nil, false
		}
		cp := cloneRecord(old)
		delete(cp.StateMap, key)
		return &cp, true
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

func cloneRecord(rec *Record) Record {
	cp := *rec
	if rec.StateMap != nil {
		cp.StateMap = make(map[string]json.RawMessage, len(rec.StateMap))
		for k, v := range rec.StateMap {
			cp.StateMap[k] = v
		}
	}
	return cp
}
