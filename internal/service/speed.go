// Package service holds the application operations behind the HTTP API and
// the operator CLI: speed configuration, recalculation, history, and accounts.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/couchcryptid/safe-speed-service/internal/store"
)

// HistoryPublisher forwards recorded entries to an external audit sink.
type HistoryPublisher interface {
	Publish(ctx context.Context, entry domain.SpeedHistoryEntry) error
}

// WeatherSource says where the weather used by a recalculation came from.
type WeatherSource string

const (
	WeatherLive      WeatherSource = "live"
	WeatherHistory   WeatherSource = "history"
	WeatherNone      WeatherSource = "none"
)

// RecalcRequest is a driver's request to recompute the recommendation.
type RecalcRequest struct {
	UseExternalWeather bool             `json:"useExternalWeather"`
	Location           *domain.Location `json:"location,omitempty"`
}

// RecalcResult is the outcome of Recalculate. WeatherError carries the
// provider's message when live weather could not be used.
type RecalcResult struct {
	Entry         domain.SpeedHistoryEntry `json:"entry"`
	Breakdown     domain.Breakdown         `json:"breakdown"`
	WeatherSource WeatherSource            `json:"weatherSource"`
	WeatherError  string                   `json:"weatherError,omitempty"`
	Saved         bool                     `json:"saved"`
}

// VerifyReport lists history entries whose recorded inputs no longer
// reproduce their stored result.
type VerifyReport struct {
	Total      int        `json:"total"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Mismatch is a history entry, by newest-first index, whose replay differs
// from its stored result.
type Mismatch struct {
	Index        int     `json:"index"`
	TimestampISO string  `json:"timestampISO"`
	Stored       float64 `json:"stored"`
	Replayed     float64 `json:"replayed"`
}

// SpeedService owns the stored speed config and history.
type SpeedService struct {
	kv              *store.KV
	weather         domain.WeatherProvider
	publisher       HistoryPublisher
	historyLimit    int
	defaultLocation domain.Location
	metrics         *observability.Metrics
	logger          *slog.Logger
}

// NewSpeedService wires the speed operations. weather and publisher may be nil
// when the provider or the history sink is disabled.
func NewSpeedService(kv *store.KV, weather domain.WeatherProvider, publisher HistoryPublisher, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *SpeedService {
	return &SpeedService{
		kv:              kv,
		weather:         weather,
		publisher:       publisher,
		historyLimit:    cfg.HistoryLimit,
		defaultLocation: domain.Location{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon},
		metrics:         metrics,
		logger:          logger,
	}
}

// CheckReadiness reports whether the backing store answers.
func (s *SpeedService) CheckReadiness(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Config returns the stored config, or false when none has been saved.
func (s *SpeedService) Config(ctx context.Context) (domain.SpeedConfig, bool) {
	var cfg domain.SpeedConfig
	if !s.kv.GetJSON(ctx, store.KeyConfig, &cfg) {
		return domain.SpeedConfig{}, false
	}
	return cfg, true
}

// SaveConfig validates and stores cfg. Validation failures are returned as
// domain.ValidationErrors.
func (s *SpeedService) SaveConfig(ctx context.Context, cfg domain.SpeedConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !s.kv.SetJSON(ctx, store.KeyConfig, cfg) {
		return ErrStoreWrite
	}
	s.logger.Info("speed config saved",
		"base_speed_limit", cfg.BaseSpeedLimit,
		"surface", cfg.Surface,
		"day_period", cfg.DayPeriod,
		"external_weather", cfg.EnableExternalWeather,
	)
	return nil
}

// ResetConfig restores and returns the default config.
func (s *SpeedService) ResetConfig(ctx context.Context) (domain.SpeedConfig, error) {
	cfg := domain.DefaultSpeedConfig()
	if err := s.SaveConfig(ctx, cfg); err != nil {
		return domain.SpeedConfig{}, err
	}
	return cfg, nil
}

// Evaluate runs the pure speed rule on caller-supplied inputs without
// touching stored state.
func (s *SpeedService) Evaluate(base float64, surface domain.Surface, period domain.DayPeriod, weather *domain.WeatherSnapshot) domain.Breakdown {
	b := domain.Explain(base, surface, period, weather)
	source := WeatherNone
	if weather != nil {
		source = "supplied"
	}
	s.observe(surface, period, source, b.MaxSafeSpeed)
	return b
}

// Weather fetches current conditions through the configured provider.
func (s *SpeedService) Weather(ctx context.Context, lat, lon float64) (domain.WeatherSnapshot, error) {
	if s.weather == nil {
		return domain.WeatherSnapshot{}, ErrWeatherDisabled
	}
	if !validLocation(domain.Location{Lat: lat, Lon: lon}) {
		return domain.WeatherSnapshot{}, ErrInvalidLocation
	}
	return s.weather.FetchCurrent(ctx, lat, lon)
}

// Recalculate evaluates the stored config, records the result at the head of
// the history, and publishes it.
//
// Weather is consulted only when both the config and the request enable it.
// A transient provider failure falls back to the newest weather snapshot in
// history; a provider API error computes without weather. In both cases the
// provider's message is returned in WeatherError.
func (s *SpeedService) Recalculate(ctx context.Context, req RecalcRequest) (RecalcResult, error) {
	cfg, ok := s.Config(ctx)
	if !ok {
		return RecalcResult{}, ErrConfigMissing
	}
	if req.Location != nil && !validLocation(*req.Location) {
		return RecalcResult{}, ErrInvalidLocation
	}

	result := RecalcResult{WeatherSource: WeatherNone}
	var weather *domain.WeatherSnapshot
	if cfg.EnableExternalWeather && req.UseExternalWeather && s.weather != nil {
		weather, result.WeatherSource, result.WeatherError = s.resolveWeather(ctx, s.location(req, cfg))
	}

	entry := domain.NewHistoryEntry(cfg, weather)
	result.Entry = entry
	result.Breakdown = domain.Explain(cfg.BaseSpeedLimit, cfg.Surface, cfg.DayPeriod, entry.WeatherSnapshot)
	s.observe(cfg.Surface, cfg.DayPeriod, result.WeatherSource, entry.ComputedMax)

	result.Saved = s.appendHistory(ctx, entry)
	if result.Saved {
		s.publish(ctx, entry)
	}
	return result, nil
}

// location picks the request location, then the config default, then the
// service default.
func (s *SpeedService) location(req RecalcRequest, cfg domain.SpeedConfig) domain.Location {
	switch {
	case req.Location != nil:
		return *req.Location
	case cfg.DefaultLocation != nil:
		return *cfg.DefaultLocation
	default:
		return s.defaultLocation
	}
}

func (s *SpeedService) resolveWeather(ctx context.Context, loc domain.Location) (*domain.WeatherSnapshot, WeatherSource, string) {
	snapshot, err := s.weather.FetchCurrent(ctx, loc.Lat, loc.Lon)
	if err == nil {
		return &snapshot, WeatherLive, ""
	}

	var apiErr *domain.WeatherAPIError
	if errors.As(err, &apiErr) {
		return nil, WeatherNone, apiErr.Error()
	}

	if last, ok := domain.LastKnownWeather(s.History(ctx)); ok {
		s.metrics.WeatherFallbacks.Inc()
		s.logger.Warn("weather unavailable, using last known conditions",
			"error", err, "last_known_time", last.TimeISO)
		return last, WeatherHistory, err.Error()
	}
	s.logger.Warn("weather unavailable and no history to fall back on", "error", err)
	return nil, WeatherNone, err.Error()
}

// appendHistory prepends entry in one atomic store update. When the stored
// history cannot be read it is left untouched and the entry is not saved.
func (s *SpeedService) appendHistory(ctx context.Context, entry domain.SpeedHistoryEntry) bool {
	history, err := store.UpdateJSON(ctx, s.kv, store.KeyHistory,
		func(current []domain.SpeedHistoryEntry, _ bool) ([]domain.SpeedHistoryEntry, error) {
			return domain.PrependHistory(current, entry, s.historyLimit), nil
		})
	if err != nil {
		s.logger.Error("history entry not saved", "timestamp", entry.TimestampISO, "error", err)
		return false
	}
	s.metrics.HistoryEntries.Set(float64(len(history)))
	return true
}

func (s *SpeedService) publish(ctx context.Context, entry domain.SpeedHistoryEntry) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, entry); err != nil {
		s.metrics.HistoryPublished.WithLabelValues("error").Inc()
		s.logger.Error("publish history entry failed", "timestamp", entry.TimestampISO, "error", err)
		return
	}
	s.metrics.HistoryPublished.WithLabelValues("success").Inc()
}

// History returns stored entries, newest first, for display. A missing or
// unreadable history reads as empty.
func (s *SpeedService) History(ctx context.Context) []domain.SpeedHistoryEntry {
	var history []domain.SpeedHistoryEntry
	if !s.kv.GetJSON(ctx, store.KeyHistory, &history) || history == nil {
		return []domain.SpeedHistoryEntry{}
	}
	return history
}

// ClearHistory removes every stored entry.
func (s *SpeedService) ClearHistory(ctx context.Context) error {
	if !s.kv.Remove(ctx, store.KeyHistory) {
		return ErrStoreWrite
	}
	s.metrics.HistoryEntries.Set(0)
	s.logger.Info("speed history cleared")
	return nil
}

// VerifyHistory replays every stored entry. An unreadable history is an
// error rather than an empty report.
func (s *SpeedService) VerifyHistory(ctx context.Context) (VerifyReport, error) {
	var history []domain.SpeedHistoryEntry
	if _, err := s.kv.LoadJSON(ctx, store.KeyHistory, &history); err != nil {
		return VerifyReport{}, fmt.Errorf("verify history: %w", err)
	}
	report := VerifyReport{Total: len(history), Mismatches: []Mismatch{}}
	for i, e := range history {
		if !e.Consistent() {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Index:        i,
				TimestampISO: e.TimestampISO,
				Stored:       e.ComputedMax,
				Replayed:     e.Replay(),
			})
		}
	}
	return report, nil
}

func (s *SpeedService) observe(surface domain.Surface, period domain.DayPeriod, source WeatherSource, speed float64) {
	s.metrics.Evaluations.WithLabelValues(string(surface), string(period), string(source)).Inc()
	s.metrics.ComputedSpeed.Observe(speed)
}

func validLocation(loc domain.Location) bool {
	return !math.IsNaN(loc.Lat) && !math.IsNaN(loc.Lon) &&
		loc.Lat >= -90 && loc.Lat <= 90 && loc.Lon >= -180 && loc.Lon <= 180
}
