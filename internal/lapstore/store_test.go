package lapstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

func testLap(track string, num uint32) *telemetry.Lap {
	lap := telemetry.NewLap(telemetry.LapMeta{Game: telemetry.GameF1, Car: "C", Track: track}, num)
	lap.Points = []telemetry.Point{
		{TMs: 0, DistanceM: 0},
		{TMs: 1000, DistanceM: 100},
	}
	lap.TimeMs = 1000
	return lap
}

func TestInsertAndGet(t *testing.T) {
	s := NewStore()
	lap := testLap("spa", 1)
	if err := s.Insert(lap); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get(lap.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != lap {
		t.Error("Get must return the same lap reference, not a copy")
	}
}

func TestInsertRejectsDuplicateAndInvalid(t *testing.T) {
	s := NewStore()
	lap := testLap("spa", 1)
	if err := s.Insert(lap); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(lap); err == nil {
		t.Error("duplicate insert should fail")
	}

	empty := telemetry.NewLap(telemetry.LapMeta{}, 1)
	var verr *telemetry.ValidationError
	if err := s.Insert(empty); !errors.As(err, &verr) {
		t.Errorf("empty lap insert should return ValidationError, got %v", err)
	}
	if err := s.Insert(nil); err == nil {
		t.Error("nil insert should fail")
	}
}

func TestGetUnknownID(t *testing.T) {
	s := NewStore()
	var verr *telemetry.ValidationError
	if _, err := s.Get(uuid.New()); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	s := NewStore()
	for _, n := range []uint32{3, 1, 2} {
		if err := s.Insert(testLap("spa", n)); err != nil {
			t.Fatalf("insert lap %d: %v", n, err)
		}
	}
	laps := s.List()
	if len(laps) != 3 {
		t.Fatalf("len = %d, want 3", len(laps))
	}
	for i, want := range []uint32{1, 2, 3} {
		if laps[i].LapNumber != want {
			t.Errorf("laps[%d].LapNumber = %d, want %d", i, laps[i].LapNumber, want)
		}
	}
}

func TestResolve(t *testing.T) {
	s := NewStore()
	a, b := testLap("spa", 1), testLap("spa", 2)
	for _, lap := range []*telemetry.Lap{a, b} {
		if err := s.Insert(lap); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	laps, err := s.Resolve([]uuid.UUID{b.ID, a.ID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if laps[0] != b || laps[1] != a {
		t.Error("Resolve must preserve requested order and return borrowed references")
	}

	if _, err := s.Resolve(nil); err == nil {
		t.Error("empty selection should fail")
	}
	if _, err := s.Resolve([]uuid.UUID{uuid.New()}); err == nil {
		t.Error("unknown id should fail")
	}
}

func TestConcurrentInserts(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				lap := testLap(fmt.Sprintf("track-%d", i), uint32(j))
				if err := s.Insert(lap); err != nil {
					t.Errorf("insert: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	if got := s.Len(); got != 400 {
		t.Errorf("Len = %d, want 400", got)
	}
}
