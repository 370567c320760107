// Package ingest turns raw connector samples into committed laps. Each
// connector is an independently cancellable Source; the Manager runs sources,
// feeds their samples through a LapBuilder and hands finished laps to the lap
// store by ownership transfer.
package ingest

import "github.com/nickz-gmm/diy-delta/internal/telemetry"

// Sample is one raw telemetry reading as decoded by a connector, before lap
// segmentation. It is a superset of the canonical point: connectors fill what
// their transport provides and leave the rest zero.
type Sample struct {
	Game     telemetry.Game
	SimTimeS float64 // session-elapsed simulator time, seconds

	SpeedMps float64
	Throttle float64 // 0..1
	Brake    float64 // 0..1
	Steer    float64 // -1..1
	Gear     int8
	RPM      float64

	// World pose, meters. The track plane is (X, Z); Y is elevation.
	WorldX, WorldY, WorldZ float64
	Yaw, Pitch, Roll       float64

	// Lap channels. Not every simulator reports them: GT7 has neither lap
	// distance nor lap number, so LapDistanceM stays 0 and the builder
	// integrates distance itself.
	LapDistanceM    float64
	CurrentLap      uint32
	CurrentLapTimeS float64
	LastLapTimeS    float64

	// Channels carries game-specific extras straight through to the point.
	Channels map[string]float64
}
