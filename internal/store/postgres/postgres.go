// Package postgres is a Store backend for deployments that share one
// database between several API replicas. Update serializes read-modify-write
// cycles across replicas with a per-key transaction advisory lock.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/safe-speed-service/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS safe_speed_kv (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and ensures the table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool. The Store closes it on Close.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM safe_speed_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

const upsertSQL = `
        INSERT INTO safe_speed_kv (key, value, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE SET
            value = EXCLUDED.value,
            updated_at = EXCLUDED.updated_at`

func (s *Store) Set(ctx context.Context, key, value string) error {
	if _, err := s.pool.Exec(ctx, upsertSQL, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Update runs fn inside a transaction. The advisory lock serializes updates
// of a key that does not exist yet; FOR UPDATE holds off a concurrent Set or
// Remove of an existing row until commit.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFn) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}

		var current string
		found := true
		err := tx.QueryRow(ctx, `SELECT value FROM safe_speed_kv WHERE key = $1 FOR UPDATE`, key).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
		} else if err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}

		next, err := fn(current, found)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertSQL, key, next); err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM safe_speed_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
