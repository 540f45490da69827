package domain

import (
	"math"
	"sort"
	"strings"
)

// MaxBaseSpeedLimit is the largest base speed limit an admin may configure, in km/h.
const MaxBaseSpeedLimit = 200.0

// SpeedConfig is the administrator-set policy read by driver views.
type SpeedConfig struct {
	BaseSpeedLimit        float64   `json:"baseSpeedLimit"`
	Surface               Surface   `json:"surface"`
	DayPeriod             DayPeriod `json:"dayPeriod"`
	EnableExternalWeather bool      `json:"enableExternalWeather"`
	DefaultLocation       *Location `json:"defaultLocation,omitempty"`
}

// DefaultSpeedConfig is the policy restored by an admin reset.
func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{
		BaseSpeedLimit:        50,
		Surface:               SurfaceAsphalt,
		DayPeriod:             DayPeriodDay,
		EnableExternalWeather: true,
	}
}

// Evaluate applies the speed rule to this config.
func (c SpeedConfig) Evaluate(weather *WeatherSnapshot) float64 {
	return Evaluate(c.BaseSpeedLimit, c.Surface, c.DayPeriod, weather)
}

// Clone returns a deep copy so snapshots never alias the caller's location.
func (c SpeedConfig) Clone() SpeedConfig {
	if c.DefaultLocation != nil {
		loc := *c.DefaultLocation
		c.DefaultLocation = &loc
	}
	return c
}

// ValidationErrors maps a field name to a user-facing message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "invalid speed config: " + strings.Join(parts, "; ")
}

// Validate checks the form-level constraints. It returns nil or a
// ValidationErrors keyed by JSON field name.
func (c SpeedConfig) Validate() error {
	errs := ValidationErrors{}

	if math.IsNaN(c.BaseSpeedLimit) || c.BaseSpeedLimit <= 0 || c.BaseSpeedLimit > MaxBaseSpeedLimit {
		errs["baseSpeedLimit"] = "Speed limit must be a number between 1 and 200 km/h"
	}
	if _, err := ParseSurface(string(c.Surface)); err != nil {
		errs["surface"] = "Surface must be one of asphalt, gravel, dirt"
	}
	if _, err := ParseDayPeriod(string(c.DayPeriod)); err != nil {
		errs["dayPeriod"] = "Day period must be day or night"
	}
	if loc := c.DefaultLocation; loc != nil {
		if math.IsNaN(loc.Lat) || loc.Lat < -90 || loc.Lat > 90 {
			errs["defaultLocation.lat"] = "Latitude must be between -90 and 90"
		}
		if math.IsNaN(loc.Lon) || loc.Lon < -180 || loc.Lon > 180 {
			errs["defaultLocation.lon"] = "Longitude must be between -180 and 180"
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
