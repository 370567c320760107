// Package lapstore is the process-wide registry of completed laps. A lap is
// inserted exactly once, is never updated, and is handed out by reference:
// callers borrow the lap, they do not copy its point sequence.
package lapstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// Store maps lap id to committed lap. Multiple connectors insert concurrently
// without coordinating with each other; readers never observe a partially
// populated lap because insertion happens-after the lap is fully built.
type Store struct {
	mu   sync.RWMutex
	laps map[uuid.UUID]*telemetry.Lap
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{laps: make(map[uuid.UUID]*telemetry.Lap)}
}

// Insert commits a lap. The store takes ownership; the caller must not
// mutate the lap afterwards. Invalid or duplicate laps are rejected.
func (s *Store) Insert(lap *telemetry.Lap) error {
	if lap == nil {
		return &telemetry.ValidationError{Reason: "nil lap"}
	}
	if err := lap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.laps[lap.ID]; exists {
		return &telemetry.ValidationError{Reason: fmt.Sprintf("lap %s already committed", lap.ID)}
	}
	s.laps[lap.ID] = lap
	return nil
}

// Get returns the lap with the given id, borrowed by reference.
func (s *Store) Get(id uuid.UUID) (*telemetry.Lap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lap, ok := s.laps[id]
	if !ok {
		return nil, &telemetry.ValidationError{Reason: fmt.Sprintf("unknown lap id %s", id)}
	}
	return lap, nil
}

// List returns references to every committed lap, ordered by game, track and
// lap number so the listing is stable across calls.
func (s *Store) List() []*telemetry.Lap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*telemetry.Lap, 0, len(s.laps))
	for _, lap := range s.laps {
		out = append(out, lap)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Meta.Game != b.Meta.Game {
			return a.Meta.Game < b.Meta.Game
		}
		if a.Meta.Track != b.Meta.Track {
			return a.Meta.Track < b.Meta.Track
		}
		if a.LapNumber != b.LapNumber {
			return a.LapNumber < b.LapNumber
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

// Resolve maps a set of lap ids to lap references, failing on the first
// unknown id. An empty selection is a ValidationError.
func (s *Store) Resolve(ids []uuid.UUID) ([]*telemetry.Lap, error) {
	if len(ids) == 0 {
		return nil, &telemetry.ValidationError{Reason: "empty lap selection"}
	}
	laps := make([]*telemetry.Lap, 0, len(ids))
	for _, id := range ids {
		lap, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		laps = append(laps, lap)
	}
	return laps, nil
}

// Len reports the number of committed laps.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.laps)
}
