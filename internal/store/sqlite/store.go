package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/store"
)

const writeQueueDepth = 256

// Store keeps keys in the kv table. Reads go straight to the connection;
// every mutation goes through the write queue.
type Store struct {
	db     *sql.DB
	writes *writeQueue
}

// New opens (and migrates) the database at path.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already-migrated connection. The Store takes ownership
// and closes db on Close.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, writes: newWriteQueue(db, writeQueueDepth)}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.writes.isClosed() {
		return "", false, store.ErrClosed
	}
	value, ok, err := readValue(s.db.QueryRowContext(ctx, selectValue, key))
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.writes.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsert(ctx, tx, key, value)
	})
}

// Update reads and rewrites key inside one queued transaction.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFn) error {
	return s.writes.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, found, err := readValue(tx.QueryRowContext(ctx, selectValue, key))
		if err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}
		next, err := fn(current, found)
		if err != nil {
			return err
		}
		return upsert(ctx, tx, key, next)
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.writes.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?;", key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if s.writes.isClosed() {
		return store.ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close waits for queued writes to commit, then closes the database.
func (s *Store) Close() error {
	if !s.writes.stop() {
		return nil
	}
	return s.db.Close()
}

const selectValue = "SELECT value FROM kv WHERE key = ?;"

func readValue(row *sql.Row) (string, bool, error) {
	var value string
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func upsert(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO kv(key, value, updated_at_ms) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value         = excluded.value,
  updated_at_ms = excluded.updated_at_ms;
`, key, value, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
