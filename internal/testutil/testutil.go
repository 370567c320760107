// Package testutil provides shared test utilities and lap fixtures.
//
// The synthetic circuits are deterministic, so geometry and analysis tests
// can assert exact corner counts and timing without recorded captures.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// SquareLapOpts parameterises the synthetic rounded-square circuit.
type SquareLapOpts struct {
	SideM         float64 // straight length per side
	CornerRadiusM float64
	StepM         float64 // sample spacing along the path
	StraightKmh   float64
	CornerKmh     float64
	TimeScale     float64 // multiplies every point's elapsed time
}

// DefaultSquareLapOpts returns a ~766 m circuit with four 90 degree corners.
func DefaultSquareLapOpts() SquareLapOpts {
	return SquareLapOpts{
		SideM:         160,
		CornerRadiusM: 20,
		StepM:         2,
		StraightKmh:   180,
		CornerKmh:     80,
		TimeScale:     1,
	}
}

// SquareLap generates a lap driven around a rounded square: four straights
// joined by four quarter-circle arcs. Braking and throttle ramps surround
// each arc so corner-metric tests have realistic inputs.
func SquareLap(meta telemetry.LapMeta, lapNumber uint32, opts SquareLapOpts) *telemetry.Lap {
	lap := telemetry.NewLap(meta, lapNumber)

	x, y := 0.0, 0.0
	heading := 0.0
	dist := 0.0
	tMs := 0.0
	arcLen := opts.CornerRadiusM * math.Pi / 2

	appendPoint := func(speedKmh, throttle, brake float64) {
		lap.Points = append(lap.Points, telemetry.Point{
			TMs:       tMs * opts.TimeScale,
			DistanceM: dist,
			X:         x,
			Y:         y,
			SpeedKmh:  speedKmh,
			Throttle:  throttle,
			Brake:     brake,
			Gear:      4,
			RPM:       speedKmh * 50,
		})
	}

	advance := func(stepM, turnRad, speedKmh, throttle, brake float64) {
		heading += turnRad
		x += stepM * math.Cos(heading)
		y += stepM * math.Sin(heading)
		dist += stepM
		tMs += stepM / (speedKmh / 3.6) * 1000
		appendPoint(speedKmh, throttle, brake)
	}

	appendPoint(opts.StraightKmh, 1, 0)
	brakeZone := 20.0
	for side := 0; side < 4; side++ {
		straight := opts.SideM
		for s := opts.StepM; s <= straight; s += opts.StepM {
			speed, throttle, brake := opts.StraightKmh, 1.0, 0.0
			if straight-s < brakeZone {
				// ramp down into the corner
				frac := (straight - s) / brakeZone
				speed = opts.CornerKmh + (opts.StraightKmh-opts.CornerKmh)*frac
				throttle, brake = 0.0, 0.8
			}
			advance(opts.StepM, 0, speed, throttle, brake)
		}
		for s := opts.StepM; s <= arcLen; s += opts.StepM {
			advance(opts.StepM, opts.StepM/opts.CornerRadiusM, opts.CornerKmh, 0.2, 0)
		}
	}

	lap.TimeMs = uint64(lap.Points[len(lap.Points)-1].TMs - lap.Points[0].TMs)
	return lap
}

// StraightLap generates a lap with the given distances on a flat heading.
// Time advances 1 second per point.
func StraightLap(meta telemetry.LapMeta, distances []float64) *telemetry.Lap {
	lap := telemetry.NewLap(meta, 1)
	for i, d := range distances {
		lap.Points = append(lap.Points, telemetry.Point{
			TMs:       float64(i) * 1000,
			DistanceM: d,
			X:         d,
			Y:         0,
			SpeedKmh:  100,
		})
	}
	if n := len(lap.Points); n > 0 {
		lap.TimeMs = uint64(lap.Points[n-1].TMs - lap.Points[0].TMs)
	}
	return lap
}
