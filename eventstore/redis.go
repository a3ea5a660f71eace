package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a durable Store backed by Redis, standing in for the cloud
// key-value role spec.md §4.2 assigns to a strongly-consistent remote store:
// events live in a per-session sorted set scored by id, so ReadAfter/Recent
// are always strongly consistent reads against a single node.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed Store. prefix defaults to "mcp:events:".
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mcp:events:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) setKey(sessionID string) string { return s.prefix + sessionID }
func (s *RedisStore) seqKey(sessionID string) string { return s.prefix + sessionID + ":seq" }

type redisEvent struct {
	ID        uint64    `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	Kind      Kind      `json:"kind"`
	Payload   []byte    `json:"payload"`
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, kind Kind, payload []byte) (uint64, error) {
	id, err := s.rdb.Incr(ctx, s.seqKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	ev := redisEvent{
		ID:        uint64(id),
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Kind:      kind,
		Payload:   payload,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	if err := s.rdb.ZAdd(ctx, s.setKey(sessionID), redis.Z{
		Score:  float64(id),
		Member: data,
	}).Err(); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *RedisStore) ReadAfter(ctx context.Context, sessionID string, lastID uint64, limit int) ([]Event, error) {
	opt := &redis.ZRangeBy{
		Min: "(" + itoa(lastID),
		Max: "+inf",
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	members, err := s.rdb.ZRangeByScore(ctx, s.setKey(sessionID), opt).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers(members)
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	stop := int64(-1)
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	} else {
		start = 0
	}
	members, err := s.rdb.ZRange(ctx, s.setKey(sessionID), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers(members)
}

func decodeMembers(members []string) ([]Event, error) {
	out := make([]Event, 0, len(members))
	for _, m := range members {
		var ev redisEvent
		if err := json.Unmarshal([]byte(m), &ev); err != nil {
			return nil, err
		}
		out = append(out, Event{
			ID:        ev.ID,
			SessionID: ev.SessionID,
			CreatedAt: ev.CreatedAt,
			Kind:      ev.Kind,
			Payload:   ev.Payload,
		})
	}
	return out, nil
}

func (s *RedisStore) Purge(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.setKey(sessionID), s.seqKey(sessionID)).Err()
}

// Expire is a no-op: Redis callers are expected to bound per-session set size
// via TTLs on the session itself (session.RedisStore) rather than a global
// sweep, since ZRANGEBYSCORE has no direct "by timestamp" index here.
func (s *RedisStore) Expire(_ context.Context, _ time.Time) error {
	return nil
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
