// Package units provides shared speed conversions and lap time formatting.
package units

import "fmt"

// Telemetry is stored in km/h internally; connectors frequently report m/s.
const (
	MpsToKmh = 3.6
	KmhToMps = 1.0 / 3.6
)

// KmhFromMps converts meters per second to kilometers per hour.
func KmhFromMps(mps float64) float64 { return mps * MpsToKmh }

// MpsFromKmh converts kilometers per hour to meters per second.
func MpsFromKmh(kmh float64) float64 { return kmh * KmhToMps }

// FormatLapTime renders milliseconds as m:ss.mmm, the conventional lap time
// notation. Negative values get a leading sign (used for deltas).
func FormatLapTime(ms float64) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	total := int64(ms)
	minutes := total / 60000
	seconds := (total % 60000) / 1000
	millis := total % 1000
	return fmt.Sprintf("%s%d:%02d.%03d", sign, minutes, seconds, millis)
}
