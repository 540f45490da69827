package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/couchcryptid/safe-speed-service/internal/store"
	"github.com/jonboulle/clockwork"
)

// --- mocks ---

type mockWeather struct {
	snapshot domain.WeatherSnapshot
	err      error
	calls    int
	lastLat  float64
	lastLon  float64
}

func (m *mockWeather) FetchCurrent(_ context.Context, lat, lon float64) (domain.WeatherSnapshot, error) {
	m.calls++
	m.lastLat, m.lastLon = lat, lon
	return m.snapshot, m.err
}

type mockPublisher struct {
	err       error
	published []domain.SpeedHistoryEntry
}

func (m *mockPublisher) Publish(_ context.Context, entry domain.SpeedHistoryEntry) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, entry)
	return nil
}

// brokenStore fails every write while still serving reads from an inner store.
type brokenStore struct {
	store.Store
}

func (brokenStore) Set(context.Context, string, string) error { return errors.New("read-only") }
func (brokenStore) Remove(context.Context, string) error      { return errors.New("read-only") }

func (brokenStore) Update(context.Context, string, store.UpdateFn) error {
	return errors.New("read-only")
}

var errReadFailed = errors.New("read failed")

// unreadableKeyStore fails every read of failKey, including the read half of
// Update, while failing is set.
type unreadableKeyStore struct {
	store.Store
	failKey string
	failing bool
}

func (s *unreadableKeyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failing && key == s.failKey {
		return "", false, errReadFailed
	}
	return s.Store.Get(ctx, key)
}

func (s *unreadableKeyStore) Update(ctx context.Context, key string, fn store.UpdateFn) error {
	if s.failing && key == s.failKey {
		return errReadFailed
	}
	return s.Store.Update(ctx, key, fn)
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		HistoryLimit: 500,
		SessionTTL:   time.Hour,
		DefaultLat:   45.5017,
		DefaultLon:   -73.5673,
	}
}

func newTestKV(backend store.Store) *store.KV {
	return store.NewKV(backend, observability.NewMetricsForTesting(), discardLogger())
}

// freezeClock pins domain.Now for the duration of the test.
func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	c := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(c)
	t.Cleanup(func() { domain.SetClock(nil) })
	return c
}
