package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxStateMapRetries bounds the optimistic-lock retry loop in mutateStateMap;
// a WATCH/EXEC conflict only happens when another writer touched the same
// key between the GET and the EXEC, which a handful of retries comfortably
// outlasts without risking a livelock under real contention.
const maxStateMapRetries = 10

// RedisStore is a durable Store backed by Redis, reusing the same client the
// teacher's BFF auth.RedisStore wires up (github.com/redis/go-redis/v9) for a
// closely related purpose: here it durably holds Mcp-Session-Id -> Record.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed Store. prefix defaults to "mcp:session:".
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mcp:session:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	if rec.StateMap == nil {
		rec.StateMap = map[string]json.RawMessage{}
	}
	return s.save(ctx, &rec)
}

func (s *RedisStore) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := redisTTL(rec)
	return s.rdb.Set(ctx, s.key(rec.ID), data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *RedisStore) Touch(ctx context.Context, id string, now time.Time) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.LastActivityAt = now
	return s.save(ctx, &rec)
}

func (s *RedisStore) SetState(ctx context.Context, id string, state State) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.State = state
	return s.save(ctx, &rec)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// ExpireDue relies on Redis's own key expiry for removal; since expired keys
// are simply gone, there is nothing left to report here beyond what Get
// already surfaces as ErrNotFound. It always returns an empty slice: the
// native TTL makes explicit sweeping unnecessary for this backend.
func (s *RedisStore) ExpireDue(_ context.Context, _ time.Time) ([]string, error) {
	return nil, nil
}

func (s *RedisStore) PutStateValue(ctx context.Context, id, key string, value json.RawMessage) error {
	return s.mutateStateMap(ctx, id, func(m map[string]json.RawMessage) {
		m[key] = value
	})
}

func (s *RedisStore) GetStateValue(ctx context.Context, id, key string) (json.RawMessage, bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	v, ok := rec.StateMap[key]
	return v, ok, nil
}

func (s *RedisStore) RemoveStateValue(ctx context.Context, id, key string) error {
	return s.mutateStateMap(ctx, id, func(m map[string]json.RawMessage) {
		delete(m, key)
	})
}

// mutateStateMap applies mutate to the session's state map using the
// standard go-redis optimistic-locking idiom: WATCH the key, read it, queue
// the rewritten value in a MULTI/EXEC, and retry from scratch if another
// client's write slipped in and invalidated the watch. This is what
// transport/server/auth.RedisStore's TxPipeline neighbors do for
// unconditional multi-key writes; a single watched key is the equivalent
// primitive for a conditional read-modify-write on one record.
func (s *RedisStore) mutateStateMap(ctx context.Context, id string, mutate func(map[string]json.RawMessage)) error {
	key := s.key(id)
	for attempt := 0; attempt < maxStateMapRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return ErrNotFound
				}
				return err
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.StateMap == nil {
				rec.StateMap = map[string]json.RawMessage{}
			}
			mutate(rec.StateMap)
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			ttl := redisTTL(&rec)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl)
				return nil
			})
			return err
		}, key)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("session: exceeded retries updating state for %s", id)
}

func redisTTL(rec *Record) time.Duration {
	if rec.TTL <= 0 {
		return 0
	}
	remaining := rec.TTL - time.Since(rec.LastActivityAt)
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}
