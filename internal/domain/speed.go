package domain

import "fmt"

// Surface is the road surface type.
type Surface string

const (
	SurfaceAsphalt Surface = "asphalt"
	SurfaceGravel  Surface = "gravel"
	SurfaceDirt    Surface = "dirt"
)

// Surfaces lists every surface in display order.
var Surfaces = []Surface{SurfaceAsphalt, SurfaceGravel, SurfaceDirt}

// DayPeriod is the time of day the recommendation applies to.
type DayPeriod string

const (
	DayPeriodDay   DayPeriod = "day"
	DayPeriodNight DayPeriod = "night"
)

// DayPeriods lists every day period in display order.
var DayPeriods = []DayPeriod{DayPeriodDay, DayPeriodNight}

// Precipitation is the kind of precipitation reported by a weather snapshot.
type Precipitation string

const (
	PrecipitationNone Precipitation = "none"
	PrecipitationRain Precipitation = "rain"
	PrecipitationSnow Precipitation = "snow"
)

// Precipitations lists every precipitation type in display order.
var Precipitations = []Precipitation{PrecipitationNone, PrecipitationRain, PrecipitationSnow}

// ParseSurface validates a surface name.
func ParseSurface(s string) (Surface, error) {
	switch v := Surface(s); v {
	case SurfaceAsphalt, SurfaceGravel, SurfaceDirt:
		return v, nil
	}
	return "", fmt.Errorf("unknown surface %q", s)
}

// ParseDayPeriod validates a day period name.
func ParseDayPeriod(s string) (DayPeriod, error) {
	switch v := DayPeriod(s); v {
	case DayPeriodDay, DayPeriodNight:
		return v, nil
	}
	return "", fmt.Errorf("unknown day period %q", s)
}

// ParsePrecipitation validates a precipitation name.
func ParsePrecipitation(s string) (Precipitation, error) {
	switch v := Precipitation(s); v {
	case PrecipitationNone, PrecipitationRain, PrecipitationSnow:
		return v, nil
	}
	return "", fmt.Errorf("unknown precipitation %q", s)
}

// UnmarshalText rejects values outside the closed set so decoded configs and
// history entries never carry an unknown surface.
func (s *Surface) UnmarshalText(b []byte) error {
	v, err := ParseSurface(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (d *DayPeriod) UnmarshalText(b []byte) error {
	v, err := ParseDayPeriod(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (p *Precipitation) UnmarshalText(b []byte) error {
	v, err := ParsePrecipitation(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Label returns the display name, e.g. "Gravel".
func (s Surface) Label() string {
	switch s {
	case SurfaceAsphalt:
		return "Asphalt"
	case SurfaceGravel:
		return "Gravel"
	case SurfaceDirt:
		return "Dirt"
	}
	return string(s)
}

// Label returns the display name, e.g. "Night".
func (d DayPeriod) Label() string {
	switch d {
	case DayPeriodDay:
		return "Day"
	case DayPeriodNight:
		return "Night"
	}
	return string(d)
}

// Label returns the display name, e.g. "Snow".
func (p Precipitation) Label() string {
	switch p {
	case PrecipitationNone:
		return "None"
	case PrecipitationRain:
		return "Rain"
	case PrecipitationSnow:
		return "Snow"
	}
	return string(p)
}
