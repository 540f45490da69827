package domain

import "time"

// SpeedHistoryEntry records one recalculation and the inputs that produced it.
type SpeedHistoryEntry struct {
	TimestampISO    string           `json:"timestampISO"`
	ConfigSnapshot  SpeedConfig      `json:"configSnapshot"`
	WeatherSnapshot *WeatherSnapshot `json:"weatherSnapshot,omitempty"`
	ComputedMax     float64          `json:"computedMax"`
}

// NewHistoryEntry evaluates cfg against weather and captures copies of both,
// stamped with the package clock.
func NewHistoryEntry(cfg SpeedConfig, weather *WeatherSnapshot) SpeedHistoryEntry {
	entry := SpeedHistoryEntry{
		TimestampISO:   clock.Now().UTC().Format(time.RFC3339Nano),
		ConfigSnapshot: cfg.Clone(),
	}
	if weather != nil {
		w := *weather
		entry.WeatherSnapshot = &w
	}
	entry.ComputedMax = entry.ConfigSnapshot.Evaluate(entry.WeatherSnapshot)
	return entry
}

// Replay re-evaluates the entry's recorded inputs.
func (e SpeedHistoryEntry) Replay() float64 {
	return e.ConfigSnapshot.Evaluate(e.WeatherSnapshot)
}

// Consistent reports whether replaying the entry reproduces ComputedMax exactly.
func (e SpeedHistoryEntry) Consistent() bool {
	return e.Replay() == e.ComputedMax
}

// PrependHistory returns a new slice with entry first, trimmed to limit
// entries when limit > 0. The input slice is not modified.
func PrependHistory(history []SpeedHistoryEntry, entry SpeedHistoryEntry, limit int) []SpeedHistoryEntry {
	n := len(history) + 1
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]SpeedHistoryEntry, 0, n)
	out = append(out, entry)
	for _, e := range history {
		if len(out) == n {
			break
		}
		out = append(out, e)
	}
	return out
}

// LastKnownWeather returns the weather snapshot of the newest entry that has one.
func LastKnownWeather(history []SpeedHistoryEntry) (*WeatherSnapshot, bool) {
	for _, e := range history {
		if e.WeatherSnapshot != nil {
			w := *e.WeatherSnapshot
			return &w, true
		}
	}
	return nil, false
}

// SafetyStatus classifies a driving speed against a recommendation.
type SafetyStatus string

const (
	StatusSafe    SafetyStatus = "safe"
	StatusCaution SafetyStatus = "caution"
)

// DefaultCurrentSpeed is the driving speed assumed when none is reported, in km/h.
const DefaultCurrentSpeed = 45.0

// ClassifySpeed returns StatusSafe when currentSpeed does not exceed computedMax.
func ClassifySpeed(currentSpeed, computedMax float64) SafetyStatus {
	if currentSpeed <= computedMax {
		return StatusSafe
	}
	return StatusCaution
}
