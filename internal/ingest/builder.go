package ingest

import (
	"math"
	"time"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/units"
)

// BuilderConfig holds the lap segmentation constants. The crossing constants
// only matter for sources without an explicit lap-number channel (GT7): a lap
// ends when the car re-enters the start/finish proximity region after the
// minimum elapsed time, moving faster than the minimum speed. The time floor
// stops position noise near the line from re-triggering the boundary.
type BuilderConfig struct {
	CrossRadiusM     float64
	MinLapTime       time.Duration
	MinCrossSpeedMps float64
}

// DefaultBuilderConfig returns the documented defaults.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		CrossRadiusM:     20.0,
		MinLapTime:       15 * time.Second,
		MinCrossSpeedMps: 1.0,
	}
}

// CommitFunc receives a finished lap. Ownership transfers with the call; the
// builder never touches the lap again.
type CommitFunc func(*telemetry.Lap)

// LapBuilder accumulates samples into an in-progress lap and detects lap
// boundaries. The in-progress buffer is exclusively owned by the feeding
// connector until commit.
type LapBuilder struct {
	meta   telemetry.LapMeta
	cfg    BuilderConfig
	commit CommitFunc

	current *telemetry.Lap
	last    Sample
	hasLast bool

	startX, startY float64
	hasStart       bool

	cumDist float64
}

// NewLapBuilder starts building laps with the given metadata.
func NewLapBuilder(meta telemetry.LapMeta, cfg BuilderConfig, commit CommitFunc) *LapBuilder {
	return &LapBuilder{
		meta:    meta,
		cfg:     cfg,
		commit:  commit,
		current: telemetry.NewLap(meta, 1),
	}
}

// Feed appends one sample to the in-progress lap, committing and rolling over
// when the sample crosses a lap boundary.
func (b *LapBuilder) Feed(s Sample) {
	tMs := s.SimTimeS * 1000
	posX, posY := s.WorldX, s.WorldZ

	// The first moving sample anchors the start/finish proximity region.
	if !b.hasStart && s.SpeedMps > 0.1 {
		b.startX, b.startY = posX, posY
		b.hasStart = true
	}

	// Prefer the simulator's lap distance; integrate the XY path otherwise.
	if s.LapDistanceM > 0 {
		b.cumDist = s.LapDistanceM
	} else if b.hasLast {
		dx := posX - b.last.WorldX
		dy := posY - b.last.WorldZ
		b.cumDist += math.Hypot(dx, dy)
	}

	if n := len(b.current.Points); n > 0 {
		prev := &b.current.Points[n-1]
		if tMs < prev.TMs {
			// Out-of-order packet; keep the stream monotonic by dropping it.
			b.last = s
			b.hasLast = true
			return
		}
		if b.cumDist < prev.DistanceM {
			b.cumDist = prev.DistanceM
		}
	}

	b.current.Points = append(b.current.Points, telemetry.Point{
		TMs:       tMs,
		DistanceM: b.cumDist,
		X:         posX,
		Y:         posY,
		SpeedKmh:  units.KmhFromMps(s.SpeedMps),
		Throttle:  s.Throttle,
		Brake:     s.Brake,
		Steer:     s.Steer,
		Gear:      s.Gear,
		RPM:       s.RPM,
		Channels:  s.Channels,
	})

	if b.lapEnded(s, tMs, posX, posY) {
		b.rollover(s, tMs)
	}

	b.last = s
	b.hasLast = true
}

// lapEnded reports whether the just-appended sample closed the lap: an
// explicit lap-number increase, or re-crossing the start/finish region.
func (b *LapBuilder) lapEnded(s Sample, tMs, posX, posY float64) bool {
	if b.hasLast && s.CurrentLap > b.last.CurrentLap && s.CurrentLap > 0 {
		return true
	}
	if !b.hasStart || len(b.current.Points) == 0 {
		return false
	}
	elapsed := tMs - b.current.Points[0].TMs
	if elapsed < float64(b.cfg.MinLapTime.Milliseconds()) {
		return false
	}
	if s.SpeedMps < b.cfg.MinCrossSpeedMps {
		return false
	}
	return math.Hypot(posX-b.startX, posY-b.startY) < b.cfg.CrossRadiusM
}

// rollover commits the finished lap and starts the next one.
func (b *LapBuilder) rollover(s Sample, tMs float64) {
	finished := b.current
	finished.TimeMs = uint64(tMs - finished.Points[0].TMs)

	nextNumber := finished.LapNumber + 1
	if s.CurrentLap > 0 {
		nextNumber = s.CurrentLap
	}
	b.current = telemetry.NewLap(b.meta, nextNumber)
	b.cumDist = 0

	b.commit(finished)
}

// InProgressPoints reports the size of the in-progress buffer. The buffer
// itself is never exposed: analysis reads committed laps only.
func (b *LapBuilder) InProgressPoints() int {
	return len(b.current.Points)
}
