package domain

import (
	"context"
	"errors"
	"fmt"
)

// WeatherSnapshot is a point-in-time capture of conditions at a location.
type WeatherSnapshot struct {
	TempC             float64       `json:"tempC"`
	PrecipitationMm   float64       `json:"precipitationMm"`
	PrecipitationType Precipitation `json:"precipitationType"`
	WindKph           float64       `json:"windKph"`
	TimeISO           string        `json:"timeISO"`
}

// Location is a WGS-84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherProvider fetches current conditions for a coordinate pair.
//
// Implementations return an error wrapping ErrWeatherUnavailable for transient
// or offline failures, and a *WeatherAPIError when the provider answered with
// a deterministic rejection.
type WeatherProvider interface {
	FetchCurrent(ctx context.Context, lat, lon float64) (WeatherSnapshot, error)
}

// ErrWeatherUnavailable marks network, timeout, and upstream-availability
// failures. Callers fall back to last-known weather.
var ErrWeatherUnavailable = errors.New("weather provider unavailable")

// WeatherAPIError is a deterministic failure reported by the weather provider,
// such as a rejected request or an unusable response body.
type WeatherAPIError struct {
	StatusCode int // 0 when the response body, not the status, was the problem
	Message    string
}

func (e *WeatherAPIError) Error() string {
	if e.StatusCode == 0 {
		return "weather API error: " + e.Message
	}
	return fmt.Sprintf("weather API error: status %d: %s", e.StatusCode, e.Message)
}

// IsTransientWeatherError reports whether err should trigger the offline fallback.
func IsTransientWeatherError(err error) bool {
	return errors.Is(err, ErrWeatherUnavailable)
}

// MinPrecipitationMm is the smallest amount that counts as precipitation.
const MinPrecipitationMm = 0.1

// DerivePrecipitation classifies precipitation from amount, temperature, and
// a WMO weather code.
func DerivePrecipitation(precipitationMm, tempC float64, weatherCode int) Precipitation {
	if precipitationMm < MinPrecipitationMm {
		return PrecipitationNone
	}
	if tempC <= 0 || isSnowCode(weatherCode) {
		return PrecipitationSnow
	}
	return PrecipitationRain
}

// isSnowCode matches WMO codes 71–77 (snow fall, snow grains) and 85–86 (snow showers).
func isSnowCode(code int) bool {
	return (code >= 71 && code <= 77) || code == 85 || code == 86
}
