package telemetry

import (
	"errors"
	"testing"
)

func makeLap(points []Point) *Lap {
	l := NewLap(LapMeta{Game: GameF1, Car: "X", Track: "Y"}, 1)
	l.Points = points
	return l
}

func TestLapValidate(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		ok     bool
	}{
		{"empty", nil, false},
		{"single", []Point{{TMs: 0}}, true},
		{"monotonic", []Point{{TMs: 0, DistanceM: 0}, {TMs: 100, DistanceM: 10}, {TMs: 200, DistanceM: 20}}, true},
		{"time regression", []Point{{TMs: 100}, {TMs: 50}}, false},
		{"distance regression", []Point{{TMs: 0, DistanceM: 10}, {TMs: 100, DistanceM: 5}}, false},
		{"flat is allowed", []Point{{TMs: 0, DistanceM: 0}, {TMs: 0, DistanceM: 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := makeLap(tt.points).Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid lap, got %v", err)
			}
			if !tt.ok {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
			}
		})
	}
}

func TestLapLengthM(t *testing.T) {
	l := makeLap([]Point{{DistanceM: 0}, {DistanceM: 42.5}})
	if got := l.LengthM(); got != 42.5 {
		t.Errorf("LengthM = %v, want 42.5", got)
	}
	if got := makeLap(nil).LengthM(); got != 0 {
		t.Errorf("empty LengthM = %v, want 0", got)
	}
}

func TestPointChannel(t *testing.T) {
	p := Point{SpeedKmh: 120, Gear: 3, Channels: map[string]float64{"tyre_temp_fl": 84.2}}
	if got := p.Channel("speed_kmh"); got != 120 {
		t.Errorf("speed_kmh = %v", got)
	}
	if got := p.Channel("gear"); got != 3 {
		t.Errorf("gear = %v", got)
	}
	if got := p.Channel("tyre_temp_fl"); got != 84.2 {
		t.Errorf("tyre_temp_fl = %v", got)
	}
	if got := p.Channel("missing"); got != 0 {
		t.Errorf("missing = %v, want 0", got)
	}
}
