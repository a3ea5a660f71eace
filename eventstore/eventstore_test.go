package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runParitySuite exercises the Store contract identically against every
// backend so the memory, sqlite and redis implementations stay behaviorally
// indistinguishable to callers, per SPEC_FULL.md §6's backend parity
// requirement.
func runParitySuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("append assigns strictly increasing per-session ids", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		id1, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{"n":1}`))
		require.NoError(t, err)
		id2, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{"n":2}`))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id1)
		assert.Equal(t, uint64(2), id2)
	})

	t.Run("per-session id sequences are independent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		idA, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{}`))
		require.NoError(t, err)
		idB, err := store.Append(ctx, "sess-b", KindMessage, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), idA)
		assert.Equal(t, uint64(1), idB)
	})

	t.Run("ReadAfter returns only events newer than the cursor, ascending", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{}`))
			require.NoError(t, err)
		}
		events, err := store.ReadAfter(ctx, "sess-a", 2, 0)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, uint64(3), events[0].ID)
		assert.Equal(t, uint64(4), events[1].ID)
		assert.Equal(t, uint64(5), events[2].ID)
	})

	t.Run("ReadAfter honors limit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{}`))
			require.NoError(t, err)
		}
		events, err := store.ReadAfter(ctx, "sess-a", 0, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, uint64(1), events[0].ID)
		assert.Equal(t, uint64(2), events[1].ID)
	})

	t.Run("ReadAfter on unknown session returns no events", func(t *testing.T) {
		store := newStore(t)
		events, err := store.ReadAfter(context.Background(), "nope", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("Recent returns the tail in ascending order", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{}`))
			require.NoError(t, err)
		}
		events, err := store.Recent(ctx, "sess-a", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, uint64(4), events[0].ID)
		assert.Equal(t, uint64(5), events[1].ID)
	})

	t.Run("payload round-trips exactly", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		want := []byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`)
		id, err := store.Append(ctx, "sess-a", KindMessage, want)
		require.NoError(t, err)
		events, err := store.ReadAfter(ctx, "sess-a", id-1, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, want, events[0].Payload)
		assert.Equal(t, KindMessage, events[0].Kind)
	})

	t.Run("Purge removes a session's events without affecting others", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{}`))
		require.NoError(t, err)
		_, err = store.Append(ctx, "sess-b", KindMessage, []byte(`{}`))
		require.NoError(t, err)
		require.NoError(t, store.Purge(ctx, "sess-a"))
		eventsA, err := store.Recent(ctx, "sess-a", 0)
		require.NoError(t, err)
		assert.Empty(t, eventsA)
		eventsB, err := store.Recent(ctx, "sess-b", 0)
		require.NoError(t, err)
		assert.Len(t, eventsB, 1)
	})
}

func TestMemoryStore_Parity(t *testing.T) {
	runParitySuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_Expire(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Append(ctx, "sess-a", KindMessage, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, store.Expire(ctx, time.Now().Add(time.Hour)))
	events, err := store.Recent(ctx, "sess-a", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteStore_Parity(t *testing.T) {
	runParitySuite(t, func(t *testing.T) Store {
		store, err := NewSQLiteStore("file::memory:?cache=shared")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteStore_Expire(t *testing.T) {
	store, err := NewSQLiteStore("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	_, err = store.Append(ctx, "sess-a", KindMessage, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, store.Expire(ctx, time.Now().Add(time.Hour)))
	events, err := store.Recent(ctx, "sess-a", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// A compile-time check that RedisStore satisfies Store; exercising it against
// a live Redis server is left to integration tests (it needs a reachable
// redis.Client, unlike the memory/sqlite backends covered above).
var _ Store = (*RedisStore)(nil)
