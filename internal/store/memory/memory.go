// Package memory is an in-process Store used by tests and STORE_BACKEND=memory.
package memory

import (
	"context"
	"sync"

	"github.com/couchcryptid/safe-speed-service/internal/store"
)

type Store struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

func New() *Store {
	return &Store{
		data: make(map[string]string),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, store.ErrClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.data[key] = value
	return nil
}

func (s *Store) Update(_ context.Context, key string, fn store.UpdateFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	current, ok := s.data[key]
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	s.data[key] = next
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	delete(s.data, key)
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
