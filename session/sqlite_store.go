package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable Store backed by the pure-Go modernc.org/sqlite
// driver, the same driver Tutu-Engine-tutuengine and other pack examples use
// for embedded storage. TTL expiry uses a julianday() comparison per
// SPEC_FULL §4 ("embedded SQL" backend), matching spec.md §4.2's prescribed
// approach for the SQLite backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the sessions table at dsn, a
// modernc.org/sqlite data source name (e.g. "file:sessions.db?cache=shared").
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	last_activity_at TEXT NOT NULL,
	ttl_ns INTEGER NOT NULL,
	protocol_version TEXT NOT NULL,
	capabilities_json TEXT NOT NULL,
	state INTEGER NOT NULL,
	state_map_json TEXT NOT NULL
)`)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) error {
	if rec.StateMap == nil {
		rec.StateMap = map[string]json.RawMessage{}
	}
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return err
	}
	stateMap, err := json.Marshal(rec.StateMap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (id, created_at, last_activity_at, ttl_ns, protocol_version, capabilities_json, state, state_map_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.LastActivityAt.UTC().Format(time.RFC3339Nano),
		int64(rec.TTL), rec.ProtocolVer, string(caps), int(rec.State), string(stateMap))
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, created_at, last_activity_at, ttl_ns, protocol_version, capabilities_json, state, state_map_json
FROM sessions WHERE id = ?`, id)
	return scanRecord(row)
}

func scanRecord(row *sql.Row) (Record, error) {
	var (
		rec                          Record
		createdAt, lastActivityAt    string
		ttlNs                        int64
		capsJSON, stateMapJSON       string
		state                        int
	)
	if err := row.Scan(&rec.ID, &createdAt, &lastActivityAt, &ttlNs, &rec.ProtocolVer, &capsJSON, &state, &stateMapJSON); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Record{}, fmt.Errorf("session: parse created_at: %w", err)
	}
	if rec.LastActivityAt, err = time.Parse(time.RFC3339Nano, lastActivityAt); err != nil {
		return Record{}, fmt.Errorf("session: parse last_activity_at: %w", err)
	}
	rec.TTL = time.Duration(ttlNs)
	rec.State = State(state)
	if err := json.Unmarshal([]byte(capsJSON), &rec.Capabilities); err != nil {
		return Record{}, err
	}
	rec.StateMap = map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(stateMapJSON), &rec.StateMap); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) Touch(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_activity_at = ? WHERE id = ?`,
		now.UTC().Format(time.RFC3339Nano), id)
	return requireAffected(res, err)
}

func (s *SQLiteStore) SetState(ctx context.Context, id string, state State) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET state = ? WHERE id = ?`, int(state), id)
	return requireAffected(res, err)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// ExpireDue returns ids whose last_activity_at + ttl has elapsed, computed
// with julianday() so the comparison happens inside SQLite rather than
// requiring every row to round-trip to Go first.
func (s *SQLiteStore) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id FROM sessions
WHERE ttl_ns > 0
  AND state NOT IN (?, ?)
  AND julianday(?) > julianday(last_activity_at) + (ttl_ns / 86400000000000.0)`,
		int(Expired), int(Deleted), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) PutStateValue(ctx context.Context, id, key string, value json.RawMessage) error {
	return s.mutateStateMap(ctx, id, func(m map[string]json.RawMessage) {
		m[key] = value
	})
}

func (s *SQLiteStore) GetStateValue(ctx context.Context, id, key string) (json.RawMessage, bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	v, ok := rec.StateMap[key]
	return v, ok, nil
}

func (s *SQLiteStore) RemoveStateValue(ctx context.Context, id, key string) error {
	return s.mutateStateMap(ctx, id, func(m map[string]json.RawMessage) {
		delete(m, key)
	})
}

// mutateStateMap reads state_map_json and writes the result of applying
// mutate back inside a single transaction, the same BeginTx-wrapped
// read-then-write shape eventstore.SQLiteStore.Append uses for its
// read-max-plus-one allocation: the SELECT and the UPDATE commit or roll back
// together, so a concurrent mutateStateMap on the same id can never observe
// (or silently overwrite) a half-applied write.
func (s *SQLiteStore) mutateStateMap(ctx context.Context, id string, mutate func(map[string]json.RawMessage)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stateMapJSON string
	if err := tx.QueryRowContext(ctx, `SELECT state_map_json FROM sessions WHERE id = ?`, id).Scan(&stateMapJSON); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	stateMap := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(stateMapJSON), &stateMap); err != nil {
		return err
	}
	mutate(stateMap)
	data, err := json.Marshal(stateMap)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET state_map_json = ? WHERE id = ?`, string(data), id); err != nil {
		return err
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func requireAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
