package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id TEXT PRIMARY KEY,
			sequence INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	rec := Record{ThreadID: threadID}
	var timestamp string
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence, timestamp, data FROM thread_checkpoints
		WHERE thread_id = ?
	`, threadID).Scan(&rec.Sequence, &timestamp, &rec.Data)

	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load checkpoint: %w", err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, timestamp)
	return rec, nil
}

// Save implements Store.
// The write is a single conditional statement, so it is atomic and the
// sequence comparison cannot interleave with another writer.
func (s *SQLiteStore) Save(ctx context.Context, threadID string, expectedSeq int, data []byte) (Record, error) {
	if threadID == "" {
		return Record{}, ErrEmptyThreadID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	var res sql.Result
	var err error
	if expectedSeq == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO thread_checkpoints (thread_id, sequence, timestamp, data)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(thread_id) DO NOTHING
		`, threadID, stamp, data)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE thread_checkpoints
			SET sequence = sequence + 1, timestamp = ?, data = ?
			WHERE thread_id = ? AND sequence = ?
		`, stamp, data, threadID, expectedSeq)
	}
	if err != nil {
		return Record{}, fmt.Errorf("save checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("save checkpoint: %w", err)
	}
	if n == 0 {
		return Record{}, ErrConflict
	}

	return Record{
		ThreadID:  threadID,
		Sequence:  expectedSeq + 1,
		Data:      cloneBytes(data),
		UpdatedAt: now,
	}, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, sequence, timestamp, LENGTH(data)
		FROM thread_checkpoints
		ORDER BY thread_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		var timestamp string
		if err := rows.Scan(&info.ThreadID, &info.Sequence, &timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}

	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM thread_checkpoints WHERE thread_id = ?
	`, threadID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
