package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/safe-speed-service/internal/observability"
)

// KV wraps a Store with JSON encoding. Backend and decode failures are
// always logged and counted. GetJSON, SetJSON, and Remove then report them as
// an absent value or a false return; LoadJSON and UpdateJSON return them
// wrapped in ErrUnavailable for read-modify-write callers that must not
// mistake a failed read for an empty one.
type KV struct {
	backend Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewKV creates a JSON facade over backend.
func NewKV(backend Store, metrics *observability.Metrics, logger *slog.Logger) *KV {
	return &KV{backend: backend, metrics: metrics, logger: logger}
}

// GetJSON decodes the value stored at key into dst. It returns false when
// the key is absent or unreadable; dst is left untouched in that case.
func (kv *KV) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok, err := kv.backend.Get(ctx, key)
	if err != nil {
		kv.fail("get", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		kv.fail("decode", key, err)
		return false
	}
	return true
}

// LoadJSON is GetJSON for callers that must tell a missing key (false, nil)
// from an unreadable one (false, ErrUnavailable).
func (kv *KV) LoadJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := kv.backend.Get(ctx, key)
	if err != nil {
		kv.fail("get", key, err)
		return false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		kv.fail("decode", key, err)
		return false, fmt.Errorf("%w: decode %s: %w", ErrUnavailable, key, err)
	}
	return true, nil
}

// UpdateJSON atomically replaces the value at key with fn applied to the
// current one. A missing key reaches fn as the zero T with found=false. An
// error returned by fn is passed through unchanged and nothing is written;
// store and codec failures are wrapped in ErrUnavailable. An unreadable
// current value is never overwritten.
func UpdateJSON[T any](ctx context.Context, kv *KV, key string, fn func(current T, found bool) (T, error)) (T, error) {
	var (
		next  T
		fnErr error
		op    = "update"
	)
	err := kv.backend.Update(ctx, key, func(raw string, found bool) (string, error) {
		var current T
		if found {
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				op = "decode"
				return "", err
			}
		}
		next, fnErr = fn(current, found)
		if fnErr != nil {
			return "", fnErr
		}
		b, err := json.Marshal(next)
		if err != nil {
			op = "encode"
			return "", err
		}
		return string(b), nil
	})

	var zero T
	if fnErr != nil {
		return zero, fnErr
	}
	if err != nil {
		kv.fail(op, key, err)
		return zero, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, key, err)
	}
	return next, nil
}

// SetJSON encodes v and stores it at key, reporting success.
func (kv *KV) SetJSON(ctx context.Context, key string, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		kv.fail("encode", key, err)
		return false
	}
	if err := kv.backend.Set(ctx, key, string(b)); err != nil {
		kv.fail("set", key, err)
		return false
	}
	return true
}

// Remove deletes key, reporting success.
func (kv *KV) Remove(ctx context.Context, key string) bool {
	if err := kv.backend.Remove(ctx, key); err != nil {
		kv.fail("remove", key, err)
		return false
	}
	return true
}

// Ping checks the backend. Unlike the accessors it returns the error; the
// readiness probe needs it.
func (kv *KV) Ping(ctx context.Context) error {
	return kv.backend.Ping(ctx)
}

func (kv *KV) fail(op, key string, err error) {
	kv.metrics.StoreErrors.WithLabelValues(op).Inc()
	kv.logger.Error("store operation failed", "op", op, "key", key, "error", err)
}
