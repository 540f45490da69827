// Package store defines the string key-value storage used for configuration,
// history, accounts, and sessions, plus a JSON facade over it.
package store

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyConfig        = "SAFE_SPEED_CONFIG"
	KeyHistory       = "SAFE_SPEED_HISTORY"
	KeyUsers         = "SAFE_SPEED_USERS"
	KeySessionPrefix = "SAFE_SPEED_SESSION:"
)

// SessionKey returns the key under which a session token is stored.
func SessionKey(token string) string {
	return KeySessionPrefix + token
}

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store closed")

// ErrUnavailable wraps backend, decode, and encode failures surfaced by the
// strict KV accessors.
var ErrUnavailable = errors.New("store unavailable")

// UpdateFn maps the current value of a key (found=false when absent) to the
// value to store. A non-nil error aborts the update and leaves the key as it was.
type UpdateFn func(current string, found bool) (string, error)

// Store is a string key-value backend. Get reports a missing key with
// ok=false and a nil error; removing a missing key is not an error.
//
// Update runs fn and writes its result as one atomic step: no other Update,
// Set, or Remove on the same key interleaves with it, including from other
// processes sharing the backend.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Update(ctx context.Context, key string, fn UpdateFn) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
