package telemetry

import (
	"fmt"

	"github.com/google/uuid"
)

// LapMeta describes where a lap came from.
type LapMeta struct {
	Game  Game   `json:"game"`
	Car   string `json:"car"`
	Track string `json:"track"`
}

// Lap is a completed, committed lap. It is immutable after commit: the lap
// store owns it and every other component borrows it by reference. Laps can
// hold thousands of points, so nothing in this codebase is allowed to clone
// the Points slice.
type Lap struct {
	ID        uuid.UUID `json:"id"`
	Meta      LapMeta   `json:"meta"`
	LapNumber uint32    `json:"lap_number"`
	TimeMs    uint64    `json:"time_ms"`
	Points    []Point   `json:"points"`
}

// NewLap allocates an empty lap with a fresh identifier.
func NewLap(meta LapMeta, lapNumber uint32) *Lap {
	return &Lap{ID: uuid.New(), Meta: meta, LapNumber: lapNumber}
}

// LengthM returns the lap length as the distance of the final point.
func (l *Lap) LengthM() float64 {
	if len(l.Points) == 0 {
		return 0
	}
	return l.Points[len(l.Points)-1].DistanceM
}

// ElapsedAt returns milliseconds from lap start to point i.
func (l *Lap) ElapsedAt(i int) float64 {
	return l.Points[i].TMs - l.Points[0].TMs
}

// Validate checks the committed-lap invariants: a non-empty point sequence
// with non-decreasing time and distance.
func (l *Lap) Validate() error {
	if len(l.Points) == 0 {
		return &ValidationError{Reason: fmt.Sprintf("lap %s has no points", l.ID)}
	}
	for i := 1; i < len(l.Points); i++ {
		if l.Points[i].TMs < l.Points[i-1].TMs {
			return &ValidationError{Reason: fmt.Sprintf("lap %s: t_ms decreases at point %d", l.ID, i)}
		}
		if l.Points[i].DistanceM < l.Points[i-1].DistanceM {
			return &ValidationError{Reason: fmt.Sprintf("lap %s: distance_m decreases at point %d", l.ID, i)}
		}
	}
	return nil
}
