package eventstore

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable Store backed by the pure-Go modernc.org/sqlite
// driver. Ids are allocated per-session via a transactional
// read-max-plus-one, per spec.md §4.2's prescribed approach for the embedded
// SQL backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the events table at dsn.
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
CREATE TABLE IF NOT EXISTS events (
	session_id TEXT NOT NULL,
	id INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	kind TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (session_id, id)
)`)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, kind Kind, payload []byte) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE session_id = ?`, sessionID).Scan(&maxID); err != nil {
		return 0, err
	}
	nextID := uint64(1)
	if maxID.Valid {
		nextID = uint64(maxID.Int64) + 1
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO events (session_id, id, created_at, kind, payload) VALUES (?, ?, ?, ?, ?)`,
		sessionID, int64(nextID), time.Now().UTC().Format(time.RFC3339Nano), string(kind), payload); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return nextID, nil
}

func (s *SQLiteStore) ReadAfter(ctx context.Context, sessionID string, lastID uint64, limit int) ([]Event, error) {
	query := `SELECT session_id, id, created_at, kind, payload FROM events WHERE session_id = ? AND id > ? ORDER BY id ASC`
	args := []interface{}{sessionID, int64(lastID)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	query := `SELECT session_id, id, created_at, kind, payload FROM events WHERE session_id = ? ORDER BY id DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			ev        Event
			id        int64
			createdAt string
			kind      string
		)
		if err := rows.Scan(&ev.SessionID, &id, &createdAt, &kind, &ev.Payload); err != nil {
			return nil, err
		}
		ev.ID = uint64(id)
		ev.Kind = Kind(kind)
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		ev.CreatedAt = t
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Purge(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) Expire(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, olderThan.UTC().Format(time.RFC3339Nano))
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
