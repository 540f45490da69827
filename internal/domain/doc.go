// Package domain models the fleet-safety speed recommendation.
//
// # Speed Rule
//
// A driver's maximum safe speed is the administrator's base speed limit scaled
// by independent safety factors, applied in a fixed order:
//
//	surface      asphalt 1.0 | gravel 0.8 | dirt 0.7
//	day period   day 1.0     | night 0.9
//	precipitation (weather only)  none 1.0 | rain 0.85 | snow 0.7
//	wind          (weather only)  <= 40 kph 1.0 | > 40 kph 0.9
//
// The product is rounded to the nearest multiple of 5 km/h with halves rounded
// away from zero (52.5 -> 55, 47 -> 45, 48 -> 50). See [Evaluate].
//
// Precipitation and wind factors only apply when a [WeatherSnapshot] is passed.
// Callers decide that based on the stored [SpeedConfig] flag and whether live or
// last-known weather is available.
//
// # Weather Data Conventions
//
// Snapshots come from the Open-Meteo "current" endpoint: temperature in °C,
// precipitation in mm over the preceding interval, wind speed in km/h at 10 m.
// Precipitation type is derived, not reported (see [DerivePrecipitation]):
//
//	amount < 0.1 mm                                -> none
//	temp <= 0 °C or WMO code 71–77, 85, 86          -> snow
//	otherwise                                      -> rain
//
// # History
//
// Every recalculation appends a [SpeedHistoryEntry] holding copies of the exact
// inputs that produced it. Replaying an entry through [Evaluate] must reproduce
// its ComputedMax; [SpeedHistoryEntry.Replay] checks this.
package domain
