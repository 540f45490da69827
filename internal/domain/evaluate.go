package domain

import "math"

const (
	// SpeedStep is the granularity of every recommendation, in km/h.
	SpeedStep = 5.0

	// StrongWindKph is the wind speed above which the wind factor applies.
	StrongWindKph = 40.0
)

// Evaluate returns the maximum recommended safe speed in km/h, a multiple of
// SpeedStep. Precipitation and wind factors apply only when weather is non-nil.
// Inputs are not validated: a negative base yields a consistent but
// meaningless result.
func Evaluate(baseSpeedLimit float64, surface Surface, period DayPeriod, weather *WeatherSnapshot) float64 {
	return Explain(baseSpeedLimit, surface, period, weather).MaxSafeSpeed
}

// Breakdown records each factor applied during an evaluation.
type Breakdown struct {
	BaseSpeedLimit float64  `json:"baseSpeedLimit"`
	Surface        float64  `json:"surface"`
	DayPeriod      float64  `json:"dayPeriod"`
	Precipitation  *float64 `json:"precipitation,omitempty"`
	Wind           *float64 `json:"wind,omitempty"`
	Raw            float64  `json:"raw"`
	MaxSafeSpeed   float64  `json:"maxSafeSpeed"`
}

// Explain evaluates the speed rule and reports the intermediate factors.
func Explain(baseSpeedLimit float64, surface Surface, period DayPeriod, weather *WeatherSnapshot) Breakdown {
	b := Breakdown{
		BaseSpeedLimit: baseSpeedLimit,
		Surface:        SurfaceFactor(surface),
		DayPeriod:      DayPeriodFactor(period),
	}

	speed := baseSpeedLimit
	speed *= b.Surface
	speed *= b.DayPeriod

	if weather != nil {
		precip := PrecipitationFactor(weather.PrecipitationType)
		wind := WindFactor(weather.WindKph)
		speed *= precip
		speed *= wind
		b.Precipitation = &precip
		b.Wind = &wind
	}

	b.Raw = speed
	b.MaxSafeSpeed = RoundToNearest(speed, SpeedStep)
	return b
}

// RoundToNearest rounds value to the nearest multiple of step, halves away
// from zero: RoundToNearest(47, 5) == 45, RoundToNearest(47.5, 5) == 50.
func RoundToNearest(value, step float64) float64 {
	return math.Round(value/step) * step
}

// SurfaceFactor returns the multiplier for a road surface.
// Values outside the closed set fall back to 1.0; parsing rejects them first.
func SurfaceFactor(s Surface) float64 {
	switch s {
	case SurfaceAsphalt:
		return 1.0
	case SurfaceGravel:
		return 0.8
	case SurfaceDirt:
		return 0.7
	}
	return 1.0
}

// DayPeriodFactor returns the multiplier for a day period.
func DayPeriodFactor(d DayPeriod) float64 {
	switch d {
	case DayPeriodDay:
		return 1.0
	case DayPeriodNight:
		return 0.9
	}
	return 1.0
}

// PrecipitationFactor returns the multiplier for a precipitation type.
func PrecipitationFactor(p Precipitation) float64 {
	switch p {
	case PrecipitationNone:
		return 1.0
	case PrecipitationRain:
		return 0.85
	case PrecipitationSnow:
		return 0.7
	}
	return 1.0
}

// WindFactor returns 0.9 for winds strictly above StrongWindKph, else 1.0.
func WindFactor(windKph float64) float64 {
	if windKph > StrongWindKph {
		return 0.9
	}
	return 1.0
}
