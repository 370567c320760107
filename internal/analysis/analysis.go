// Package analysis computes multi-lap insights over committed laps: channel
// overlays on a shared distance grid, rolling time deltas against a reference
// lap, lap-set summaries and per-corner metrics.
//
// Every operation borrows laps by reference and runs synchronously to
// completion. Identical inputs always produce identical outputs.
package analysis

import (
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
)

// Config holds the analysis constants.
type Config struct {
	// GridStepM is the distance grid spacing for overlays and delta ribbons.
	GridStepM float64
	// CornerWindowM is the distance window centered on a corner apex within
	// which corner metrics are computed.
	CornerWindowM float64
	// BrakeOnThreshold is the brake input treated as "braking".
	BrakeOnThreshold float64
	// ThrottleOnThreshold is the throttle input treated as "back on power".
	ThrottleOnThreshold float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		GridStepM:           1.0,
		CornerWindowM:       100.0,
		BrakeOnThreshold:    0.2,
		ThrottleOnThreshold: 0.6,
	}
}

// Series is one lap's channel resampled onto the overlay grid.
type Series struct {
	LapID   uuid.UUID `json:"lap_id"`
	Channel string    `json:"channel"`
	Values  []float64 `json:"values"`
}

// Overlay is the shared-grid resampling of a lap set. Values beyond a lap's
// recorded length clamp to its final sample.
type Overlay struct {
	Distances []float64 `json:"distances"`
	Series    []Series  `json:"series"`
}

// DeltaPoint is one sample of a delta ribbon.
type DeltaPoint struct {
	DistanceM float64 `json:"distance_m"`
	DeltaMs   float64 `json:"delta_ms"`
}

// DeltaRibbon is one lap's elapsed-time difference against the reference,
// sampled along the reference lap's distance. Positive means slower.
type DeltaRibbon struct {
	LapID  uuid.UUID    `json:"lap_id"`
	Points []DeltaPoint `json:"points"`
}

// Summary aggregates total times across a lap set.
type Summary struct {
	BestMs       float64 `json:"best_ms"`
	WorstMs      float64 `json:"worst_ms"`
	AvgMs        float64 `json:"avg_ms"`
	ConsistencyS float64 `json:"consistency_s"`
}

// CornerMetrics are per-corner performance figures computed against the
// reference lap within a fixed window around the apex.
type CornerMetrics struct {
	Index         int     `json:"index"`
	ApexM         float64 `json:"apex_m"`
	MinSpeedKmh   float64 `json:"min_speed_kmh"`
	EntrySpeedKmh float64 `json:"entry_speed_kmh"`
	ExitSpeedKmh  float64 `json:"exit_speed_kmh"`
	BrakePointM   float64 `json:"brake_point_m"`
	ThrottleOnM   float64 `json:"throttle_on_m"`
}

// Result is a full multi-lap analysis against a designated reference lap.
type Result struct {
	ReferenceID uuid.UUID          `json:"reference_id"`
	Overlay     *Overlay           `json:"overlay"`
	Ribbons     []DeltaRibbon      `json:"delta_ribbons"`
	Summary     Summary            `json:"summary"`
	Corners     []CornerMetrics    `json:"corners"`
	TrackMap    *trackmap.TrackMap `json:"track_map"`
}

// Analyze runs the full analysis over a non-empty lap set. The reference lap
// is laps[refIdx]; pass 0 for the default "first selected" policy. Sector
// boundaries and corner locations come from the reference lap's track map.
func Analyze(laps []*telemetry.Lap, refIdx int, channels []string, cfg Config, tuning trackmap.Tuning) (*Result, error) {
	if len(laps) == 0 {
		return nil, &telemetry.ValidationError{Reason: "empty lap selection"}
	}
	if refIdx < 0 || refIdx >= len(laps) {
		return nil, &telemetry.ValidationError{Reason: "reference index out of range"}
	}
	ref := laps[refIdx]

	tm, err := trackmap.Build(ref, tuning)
	if err != nil {
		return nil, err
	}

	overlay, err := BuildOverlay(laps, channels, cfg)
	if err != nil {
		return nil, err
	}

	others := make([]*telemetry.Lap, 0, len(laps)-1)
	for i, lap := range laps {
		if i != refIdx {
			others = append(others, lap)
		}
	}
	ribbons := DeltaRibbons(ref, others, cfg)

	summary, err := Summarize(laps, tm.Sectors)
	if err != nil {
		return nil, err
	}

	return &Result{
		ReferenceID: ref.ID,
		Overlay:     overlay,
		Ribbons:     ribbons,
		Summary:     summary,
		Corners:     CornerAnalysis(ref, tm.Corners, cfg),
		TrackMap:    tm,
	}, nil
}

// BuildOverlay resamples the requested channels of every lap onto a shared
// distance grid with fixed step. The grid spans the longest lap, and rows are
// allocated up front: (maxLen/step)+1 samples, no incremental growth.
func BuildOverlay(laps []*telemetry.Lap, channels []string, cfg Config) (*Overlay, error) {
	if len(laps) == 0 {
		return nil, &telemetry.ValidationError{Reason: "empty lap selection"}
	}
	if len(channels) == 0 {
		channels = []string{"speed_kmh"}
	}
	step := cfg.GridStepM
	if step <= 0 {
		step = 1.0
	}

	maxLen := 0.0
	for _, lap := range laps {
		maxLen = math.Max(maxLen, lap.LengthM())
	}
	rows := int(maxLen/step) + 1

	distances := make([]float64, rows)
	for i := range distances {
		distances[i] = float64(i) * step
	}

	overlay := &Overlay{
		Distances: distances,
		Series:    make([]Series, 0, len(laps)*len(channels)),
	}
	for _, lap := range laps {
		for _, channel := range channels {
			values := make([]float64, rows)
			cursor := 0
			for i, d := range distances {
				values[i] = channelAtDistance(lap, channel, d, &cursor)
			}
			overlay.Series = append(overlay.Series, Series{LapID: lap.ID, Channel: channel, Values: values})
		}
	}
	return overlay, nil
}

// DeltaRibbons computes, for each given lap, its elapsed-time difference
// versus the reference at every grid distance along the reference lap. The
// reference compared against itself is identically zero.
func DeltaRibbons(ref *telemetry.Lap, laps []*telemetry.Lap, cfg Config) []DeltaRibbon {
	step := cfg.GridStepM
	if step <= 0 {
		step = 1.0
	}
	rows := int(ref.LengthM()/step) + 1

	ribbons := make([]DeltaRibbon, 0, len(laps))
	for _, lap := range laps {
		points := make([]DeltaPoint, rows)
		refCursor, lapCursor := 0, 0
		for i := range points {
			d := float64(i) * step
			points[i] = DeltaPoint{
				DistanceM: d,
				DeltaMs:   elapsedAtDistance(lap, d, &lapCursor) - elapsedAtDistance(ref, d, &refCursor),
			}
		}
		ribbons = append(ribbons, DeltaRibbon{LapID: lap.ID, Points: points})
	}
	return ribbons
}

// Summarize aggregates total times and sector consistency across a lap set.
// ConsistencyS is the across-lap population standard deviation of per-sector
// times, averaged over sectors, in seconds. A single lap is perfectly
// consistent by definition.
func Summarize(laps []*telemetry.Lap, sectors []trackmap.Sector) (Summary, error) {
	if len(laps) == 0 {
		return Summary{}, &telemetry.ValidationError{Reason: "empty lap selection"}
	}

	times := make([]float64, len(laps))
	for i, lap := range laps {
		times[i] = float64(lap.TimeMs)
	}
	s := Summary{BestMs: times[0], WorstMs: times[0], AvgMs: stat.Mean(times, nil)}
	for _, t := range times[1:] {
		s.BestMs = math.Min(s.BestMs, t)
		s.WorstMs = math.Max(s.WorstMs, t)
	}

	if len(laps) < 2 || len(sectors) == 0 {
		return s, nil
	}

	sectorTimes := make([][]float64, len(laps))
	for i, lap := range laps {
		st, err := trackmap.SectorTimes(lap, sectors)
		if err != nil {
			return Summary{}, err
		}
		sectorTimes[i] = st
	}

	perLap := make([]float64, len(laps))
	total := 0.0
	for sec := range sectors {
		for i := range laps {
			perLap[i] = sectorTimes[i][sec]
		}
		total += stat.PopStdDev(perLap, nil)
	}
	s.ConsistencyS = total / float64(len(sectors)) / 1000.0
	return s, nil
}

// CornerAnalysis computes per-corner metrics on the reference lap within a
// CornerWindowM window centered on each apex. BrakePointM is the first
// distance before the apex where brake input crosses the on-threshold;
// ThrottleOnM is the first distance after the apex where throttle does.
// Either defaults to the apex distance when the input never crosses inside
// the window.
func CornerAnalysis(ref *telemetry.Lap, corners []trackmap.Corner, cfg Config) []CornerMetrics {
	out := make([]CornerMetrics, 0, len(corners))
	pts := ref.Points
	half := cfg.CornerWindowM / 2

	for _, corner := range corners {
		startM, endM := corner.ApexM-half, corner.ApexM+half
		m := CornerMetrics{
			Index:       corner.Index,
			ApexM:       corner.ApexM,
			MinSpeedKmh: math.Inf(1),
			BrakePointM: corner.ApexM,
			ThrottleOnM: corner.ApexM,
		}

		entrySum, entryN := 0.0, 0
		exitSum, exitN := 0.0, 0
		brakeFound, throttleFound := false, false
		for i := range pts {
			d := pts[i].DistanceM
			if d < startM {
				continue
			}
			if d > endM {
				break
			}
			m.MinSpeedKmh = math.Min(m.MinSpeedKmh, pts[i].SpeedKmh)
			if d < corner.ApexM {
				entrySum += pts[i].SpeedKmh
				entryN++
				if !brakeFound && pts[i].Brake > cfg.BrakeOnThreshold {
					m.BrakePointM = d
					brakeFound = true
				}
			} else if d > corner.ApexM {
				exitSum += pts[i].SpeedKmh
				exitN++
				if !throttleFound && pts[i].Throttle > cfg.ThrottleOnThreshold {
					m.ThrottleOnM = d
					throttleFound = true
				}
			}
		}

		if entryN > 0 {
			m.EntrySpeedKmh = entrySum / float64(entryN)
		}
		if exitN > 0 {
			m.ExitSpeedKmh = exitSum / float64(exitN)
		}
		if math.IsInf(m.MinSpeedKmh, 1) {
			m.MinSpeedKmh = 0
		}
		out = append(out, m)
	}
	return out
}

// channelAtDistance linearly interpolates a lap channel at the given
// distance, clamping outside the recorded range. The cursor carries the scan
// position across ascending queries so a full resample stays linear.
func channelAtDistance(lap *telemetry.Lap, channel string, dist float64, cursor *int) float64 {
	pts := lap.Points
	if len(pts) == 0 {
		return 0
	}
	i := advance(pts, dist, cursor)
	if i == 0 {
		return pts[0].Channel(channel)
	}
	if i >= len(pts) {
		return pts[len(pts)-1].Channel(channel)
	}
	prev, cur := &pts[i-1], &pts[i]
	span := cur.DistanceM - prev.DistanceM
	if span <= 0 {
		return cur.Channel(channel)
	}
	frac := (dist - prev.DistanceM) / span
	a, b := prev.Channel(channel), cur.Channel(channel)
	return a + frac*(b-a)
}

// elapsedAtDistance interpolates milliseconds from lap start at the given
// distance using the bracketing points.
func elapsedAtDistance(lap *telemetry.Lap, dist float64, cursor *int) float64 {
	pts := lap.Points
	if len(pts) == 0 {
		return 0
	}
	t0 := pts[0].TMs
	i := advance(pts, dist, cursor)
	if i == 0 {
		return 0
	}
	if i >= len(pts) {
		return pts[len(pts)-1].TMs - t0
	}
	prev, cur := &pts[i-1], &pts[i]
	span := cur.DistanceM - prev.DistanceM
	if span <= 0 {
		return cur.TMs - t0
	}
	frac := (dist - prev.DistanceM) / span
	return prev.TMs - t0 + frac*(cur.TMs-prev.TMs)
}

// advance moves the cursor to the first point with DistanceM >= dist.
func advance(pts []telemetry.Point, dist float64, cursor *int) int {
	i := *cursor
	if i > len(pts) {
		i = len(pts)
	}
	// queries arrive in ascending distance order; rewind only if they don't
	for i > 0 && pts[i-1].DistanceM >= dist {
		i--
	}
	for i < len(pts) && pts[i].DistanceM < dist {
		i++
	}
	*cursor = i
	return i
}
