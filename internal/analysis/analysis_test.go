package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/testutil"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
)

// pacedLap builds a lap over lengthM meters at a constant pace such that the
// lap takes totalMs milliseconds, sampled every 10 m.
func pacedLap(totalMs float64, lengthM float64) *telemetry.Lap {
	lap := telemetry.NewLap(telemetry.LapMeta{Game: telemetry.GameF1, Car: "X", Track: "Y"}, 1)
	msPerM := totalMs / lengthM
	for d := 0.0; d <= lengthM; d += 10 {
		lap.Points = append(lap.Points, telemetry.Point{
			TMs:       d * msPerM,
			DistanceM: d,
			X:         d,
			SpeedKmh:  lengthM / totalMs * 3600,
		})
	}
	lap.TimeMs = uint64(totalMs)
	return lap
}

func TestBuildOverlayGrid(t *testing.T) {
	a := pacedLap(100000, 1000)
	b := pacedLap(101000, 900)

	overlay, err := BuildOverlay([]*telemetry.Lap{a, b}, nil, DefaultConfig())
	require.NoError(t, err)

	// Grid spans the longest lap: 1000/1 + 1 rows.
	require.Len(t, overlay.Distances, 1001)
	require.Len(t, overlay.Series, 2) // default channel only
	for _, s := range overlay.Series {
		require.Len(t, s.Values, 1001)
	}

	// Beyond lap b's 900 m the series clamps to its final sample.
	bSeries := overlay.Series[1]
	require.Equal(t, b.ID, bSeries.LapID)
	require.InDelta(t, bSeries.Values[900], bSeries.Values[1000], 1e-9)
}

func TestBuildOverlayChannels(t *testing.T) {
	a := pacedLap(100000, 1000)
	overlay, err := BuildOverlay([]*telemetry.Lap{a}, []string{"speed_kmh", "throttle"}, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, overlay.Series, 2)
	require.Equal(t, "speed_kmh", overlay.Series[0].Channel)
	require.Equal(t, "throttle", overlay.Series[1].Channel)
}

func TestDeltaRibbonSelfIsZero(t *testing.T) {
	ref := pacedLap(100000, 1000)
	ribbons := DeltaRibbons(ref, []*telemetry.Lap{ref}, DefaultConfig())
	require.Len(t, ribbons, 1)
	for _, p := range ribbons[0].Points {
		if p.DeltaMs != 0 {
			t.Fatalf("self delta at %v m is %v ms, want 0", p.DistanceM, p.DeltaMs)
		}
	}
}

func TestDeltaRibbonSlowerLap(t *testing.T) {
	a := pacedLap(100000, 1000)
	b := pacedLap(101000, 1000)

	ribbons := DeltaRibbons(a, []*telemetry.Lap{b}, DefaultConfig())
	require.Len(t, ribbons, 1)
	points := ribbons[0].Points

	// B loses time linearly, ending roughly +1000 ms down.
	require.InDelta(t, 0, points[0].DeltaMs, 1e-6)
	last := points[len(points)-1]
	require.InDelta(t, 1000, last.DeltaMs, 5)

	// The delta trends monotonically for a uniformly slower lap.
	for i := 1; i < len(points); i++ {
		if points[i].DeltaMs < points[i-1].DeltaMs-1e-9 {
			t.Fatalf("delta regressed at %v m", points[i].DistanceM)
		}
	}
}

func TestSummaryOrdering(t *testing.T) {
	laps := []*telemetry.Lap{
		pacedLap(101500, 1000),
		pacedLap(100000, 1000),
		pacedLap(100700, 1000),
	}
	sectors := []trackmap.Sector{{StartM: 0, EndM: 500}, {StartM: 500, EndM: 1000}}

	s, err := Summarize(laps, sectors)
	require.NoError(t, err)
	require.Equal(t, 100000.0, s.BestMs)
	require.Equal(t, 101500.0, s.WorstMs)
	require.True(t, s.BestMs <= s.AvgMs && s.AvgMs <= s.WorstMs,
		"best %v <= avg %v <= worst %v", s.BestMs, s.AvgMs, s.WorstMs)
	require.Greater(t, s.ConsistencyS, 0.0)
}

func TestSummarySingleLap(t *testing.T) {
	s, err := Summarize([]*telemetry.Lap{pacedLap(90000, 1000)}, nil)
	require.NoError(t, err)
	require.Equal(t, 90000.0, s.BestMs)
	require.Equal(t, s.BestMs, s.WorstMs)
	require.Equal(t, s.BestMs, s.AvgMs)
	require.Zero(t, s.ConsistencyS)
}

func TestSummarizeEmpty(t *testing.T) {
	_, err := Summarize(nil, nil)
	require.Error(t, err)
}

func TestCornerAnalysisSquareLap(t *testing.T) {
	meta := telemetry.LapMeta{Game: telemetry.GameGT7, Car: "GR010", Track: "square"}
	lap := testutil.SquareLap(meta, 1, testutil.DefaultSquareLapOpts())
	tm, err := trackmap.Build(lap, trackmap.DefaultTuning())
	require.NoError(t, err)
	require.NotEmpty(t, tm.Corners)

	metrics := CornerAnalysis(lap, tm.Corners, DefaultConfig())
	require.Len(t, metrics, len(tm.Corners))

	for _, m := range metrics {
		// The generator brakes to 80 km/h for every corner.
		require.InDelta(t, 80, m.MinSpeedKmh, 2, "corner %d min speed", m.Index)
		require.Greater(t, m.EntrySpeedKmh, m.MinSpeedKmh, "corner %d entry", m.Index)
		// The brake point precedes the apex.
		require.Less(t, m.BrakePointM, m.ApexM, "corner %d brake point", m.Index)
	}
}

func TestAnalyzeFullResult(t *testing.T) {
	opts := testutil.DefaultSquareLapOpts()
	meta := telemetry.LapMeta{Game: telemetry.GameGT7, Car: "GR010", Track: "square"}
	ref := testutil.SquareLap(meta, 1, opts)
	opts.TimeScale = 1.02
	slower := testutil.SquareLap(meta, 2, opts)

	res, err := Analyze([]*telemetry.Lap{ref, slower}, 0, nil, DefaultConfig(), trackmap.DefaultTuning())
	require.NoError(t, err)

	require.Equal(t, ref.ID, res.ReferenceID)
	require.Len(t, res.Ribbons, 1)
	require.Equal(t, slower.ID, res.Ribbons[0].LapID)
	require.NotEmpty(t, res.Corners)
	require.NotNil(t, res.TrackMap)
	require.True(t, res.Summary.BestMs <= res.Summary.AvgMs && res.Summary.AvgMs <= res.Summary.WorstMs)

	// The slower lap ends in the positive.
	lastDelta := res.Ribbons[0].Points[len(res.Ribbons[0].Points)-1].DeltaMs
	require.Greater(t, lastDelta, 0.0)
}

func TestAnalyzeValidation(t *testing.T) {
	_, err := Analyze(nil, 0, nil, DefaultConfig(), trackmap.DefaultTuning())
	require.Error(t, err)

	lap := pacedLap(100000, 1000)
	_, err = Analyze([]*telemetry.Lap{lap}, 5, nil, DefaultConfig(), trackmap.DefaultTuning())
	require.Error(t, err)
}

func TestDeterminism(t *testing.T) {
	laps := []*telemetry.Lap{pacedLap(100000, 1000), pacedLap(100500, 1000)}
	a, err := Analyze(laps, 0, nil, DefaultConfig(), trackmap.DefaultTuning())
	require.NoError(t, err)
	b, err := Analyze(laps, 0, nil, DefaultConfig(), trackmap.DefaultTuning())
	require.NoError(t, err)

	require.Equal(t, a.Summary, b.Summary)
	for i := range a.Overlay.Series {
		for j := range a.Overlay.Series[i].Values {
			if math.IsNaN(a.Overlay.Series[i].Values[j]) {
				t.Fatal("overlay produced NaN")
			}
			require.Equal(t, a.Overlay.Series[i].Values[j], b.Overlay.Series[i].Values[j])
		}
	}
}
