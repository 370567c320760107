// Package telemetry defines the canonical in-memory telemetry model shared by
// every connector, the analysis engine and the file codecs. Any new data
// source must map its raw channels onto this schema.
package telemetry

// Game identifies the simulator a lap was recorded from.
type Game string

const (
	GameF1       Game = "F1"
	GameGT7      Game = "GT7"
	GameLMU      Game = "LMU"
	GameImported Game = "Imported"
)

// Point is one sampled instant of a lap. TMs and DistanceM are both
// non-decreasing within a lap; a violation indicates a decode or
// segmentation bug upstream.
type Point struct {
	TMs       float64 `json:"t_ms"`       // session-elapsed time, milliseconds
	DistanceM float64 `json:"distance_m"` // cumulative lap distance, meters
	X         float64 `json:"x"`          // world-plane position
	Y         float64 `json:"y"`
	SpeedKmh  float64 `json:"speed_kmh"`
	Throttle  float64 `json:"throttle"` // 0..1
	Brake     float64 `json:"brake"`    // 0..1
	Steer     float64 `json:"steer"`    // -1..1
	Gear      int8    `json:"gear"`
	RPM       float64 `json:"rpm"`

	// Channels carries game-specific extra channels by name. Nil when a
	// source has none; consumers must treat a missing key as 0.
	Channels map[string]float64 `json:"channels,omitempty"`
}

// Channel returns a named channel value. Canonical fields are addressable by
// the same names the codecs use, so analysis can resample any column.
func (p *Point) Channel(name string) float64 {
	switch name {
	case "t_ms":
		return p.TMs
	case "distance_m":
		return p.DistanceM
	case "x":
		return p.X
	case "y":
		return p.Y
	case "speed_kmh":
		return p.SpeedKmh
	case "throttle":
		return p.Throttle
	case "brake":
		return p.Brake
	case "steer":
		return p.Steer
	case "gear":
		return float64(p.Gear)
	case "rpm":
		return p.RPM
	}
	return p.Channels[name]
}
