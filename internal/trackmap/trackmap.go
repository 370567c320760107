// Package trackmap reconstructs track geometry from a single committed lap:
// a decimated polyline, the bounding box, curvature-peak corners and a
// gap-free sector partition of the lap distance.
package trackmap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// Tuning holds the geometric analysis constants. The defaults were settled by
// replaying captured laps; they are configuration, not magic numbers, and the
// property tests hold for any sane values.
type Tuning struct {
	// CurvatureThreshold is the minimum smoothed curvature (rad/m) for a
	// point to qualify as a corner apex candidate.
	CurvatureThreshold float64
	// PeakMergeDistM merges apex candidates closer than this arc length so a
	// single physical corner is never labelled twice.
	PeakMergeDistM float64
	// SmoothWindow is the moving-average half window (points on each side)
	// applied to the raw curvature signal.
	SmoothWindow int
	// MaxPolylinePoints caps the decimated polyline vertex count.
	MaxPolylinePoints int
	// MinCornersForSectors is the corner count needed before sectors are cut
	// at corner locations instead of the even fallback split.
	MinCornersForSectors int
	// FallbackSectorCount is the even-split sector count used when the lap
	// has too few corners.
	FallbackSectorCount int
}

// DefaultTuning returns the documented defaults.
func DefaultTuning() Tuning {
	return Tuning{
		CurvatureThreshold:   0.006,
		PeakMergeDistM:       25.0,
		SmoothWindow:         2,
		MaxPolylinePoints:    1500,
		MinCornersForSectors: 2,
		FallbackSectorCount:  3,
	}
}

// minCurvaturePoints is the shortest lap the curvature analysis can work on:
// central differences need two neighbours on each side of a point.
const minCurvaturePoints = 5

// Point2 is a polyline vertex in the world plane.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BBox is the axis-aligned bounding box over every source point.
type BBox struct {
	MinX float64 `json:"minx"`
	MaxX float64 `json:"maxx"`
	MinY float64 `json:"miny"`
	MaxY float64 `json:"maxy"`
}

// Corner marks a detected corner apex, indexed ascending by lap distance.
type Corner struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	ApexM float64 `json:"apex_m"`
}

// Sector is a half-open arc [StartM, EndM) of lap distance.
type Sector struct {
	StartM float64 `json:"start_m"`
	EndM   float64 `json:"end_m"`
}

// TrackMap is the derived geometry of one lap. It holds no reference back
// into the lap store and is owned by the caller that requested it.
type TrackMap struct {
	BBox     BBox     `json:"bbox"`
	Polyline []Point2 `json:"polyline"`
	Corners  []Corner `json:"corners"`
	Sectors  []Sector `json:"sectors"`
}

// Build derives the track map for one lap, borrowed by reference.
func Build(lap *telemetry.Lap, tuning Tuning) (*TrackMap, error) {
	if lap == nil || len(lap.Points) == 0 {
		return nil, &telemetry.GeometryError{Reason: "lap has no points"}
	}
	pts := lap.Points

	tm := &TrackMap{
		BBox:     bboxOf(pts),
		Polyline: decimate(pts, tuning.MaxPolylinePoints),
	}

	length := lap.LengthM()
	if len(pts) < minCurvaturePoints {
		// Too few points to estimate curvature: no corners, and the whole
		// lap is one sector.
		tm.Sectors = []Sector{{StartM: 0, EndM: length}}
		return tm, nil
	}
	curv := curvatureSeries(pts, tuning.SmoothWindow)
	tm.Corners = findCorners(pts, curv, tuning)
	tm.Sectors = buildSectors(tm.Corners, length, tuning)
	return tm, nil
}

func bboxOf(pts []telemetry.Point) BBox {
	b := BBox{MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1)}
	for i := range pts {
		b.MinX = math.Min(b.MinX, pts[i].X)
		b.MaxX = math.Max(b.MaxX, pts[i].X)
		b.MinY = math.Min(b.MinY, pts[i].Y)
		b.MaxY = math.Max(b.MaxY, pts[i].Y)
	}
	return b
}

// decimate picks every stride-th point so the polyline stays under maxPoints
// vertices while preserving overall shape. The final point is always kept so
// the loop closes visually.
func decimate(pts []telemetry.Point, maxPoints int) []Point2 {
	if maxPoints <= 0 {
		maxPoints = len(pts)
	}
	stride := 1
	if len(pts) > maxPoints {
		stride = (len(pts) + maxPoints - 1) / maxPoints
	}
	out := make([]Point2, 0, len(pts)/stride+1)
	for i := 0; i < len(pts); i += stride {
		out = append(out, Point2{X: pts[i].X, Y: pts[i].Y})
	}
	if last := len(pts) - 1; last%stride != 0 {
		out = append(out, Point2{X: pts[last].X, Y: pts[last].Y})
	}
	return out
}

// curvatureSeries computes |delta heading| / arc length per point via finite
// differences, then smooths with a moving average to suppress position noise.
func curvatureSeries(pts []telemetry.Point, smoothWindow int) []float64 {
	n := len(pts)
	heading := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		heading[i] = math.Atan2(pts[i+1].Y-pts[i].Y, pts[i+1].X-pts[i].X)
	}

	raw := make([]float64, n)
	for i := 1; i < n-1; i++ {
		ds := pts[i+1].DistanceM - pts[i-1].DistanceM
		if ds <= 0 {
			continue
		}
		raw[i] = math.Abs(wrapAngle(heading[i]-heading[i-1])) / ds
	}

	if smoothWindow <= 0 {
		return raw
	}
	smoothed := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := max(0, i-smoothWindow)
		hi := min(n-1, i+smoothWindow)
		smoothed[i] = stat.Mean(raw[lo:hi+1], nil)
	}
	return smoothed
}

// wrapAngle maps an angle difference into (-pi, pi].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// findCorners locates local curvature maxima above the threshold and merges
// maxima closer than PeakMergeDistM, keeping the sharper one.
func findCorners(pts []telemetry.Point, curv []float64, tuning Tuning) []Corner {
	type peak struct {
		idx  int
		curv float64
	}
	var peaks []peak
	for i := 1; i < len(curv)-1; i++ {
		if curv[i] < tuning.CurvatureThreshold {
			continue
		}
		if curv[i] >= curv[i-1] && curv[i] > curv[i+1] {
			peaks = append(peaks, peak{idx: i, curv: curv[i]})
		}
	}

	// Peaks arrive ascending by distance; collapse runs closer than the
	// merge distance down to their sharpest member.
	var merged []peak
	for _, p := range peaks {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if pts[p.idx].DistanceM-pts[last.idx].DistanceM < tuning.PeakMergeDistM {
				if p.curv > last.curv {
					*last = p
				}
				continue
			}
		}
		merged = append(merged, p)
	}

	corners := make([]Corner, len(merged))
	for i, p := range merged {
		corners[i] = Corner{
			Index: i + 1,
			X:     pts[p.idx].X,
			Y:     pts[p.idx].Y,
			ApexM: pts[p.idx].DistanceM,
		}
	}
	return corners
}

// buildSectors partitions [0, length) into contiguous arcs. With enough
// corners the cuts fall on corner apexes; otherwise the lap is split evenly.
// Full coverage with no gaps or overlaps is a hard invariant either way.
func buildSectors(corners []Corner, length float64, tuning Tuning) []Sector {
	if length <= 0 {
		return []Sector{{StartM: 0, EndM: length}}
	}

	var cuts []float64
	if len(corners) >= tuning.MinCornersForSectors {
		for _, c := range corners {
			if c.ApexM > 0 && c.ApexM < length {
				cuts = append(cuts, c.ApexM)
			}
		}
	} else if n := tuning.FallbackSectorCount; n > 1 {
		for i := 1; i < n; i++ {
			cuts = append(cuts, length*float64(i)/float64(n))
		}
	}

	sectors := make([]Sector, 0, len(cuts)+1)
	start := 0.0
	for _, cut := range cuts {
		if cut <= start {
			continue
		}
		sectors = append(sectors, Sector{StartM: start, EndM: cut})
		start = cut
	}
	sectors = append(sectors, Sector{StartM: start, EndM: length})
	return sectors
}

// SectorTimes computes a lap's elapsed time within each sector by linear
// interpolation of the lap's time-at-distance curve at the sector bounds.
// Sector bounds beyond the lap's length clamp to its final time.
func SectorTimes(lap *telemetry.Lap, sectors []Sector) ([]float64, error) {
	if lap == nil || len(lap.Points) == 0 {
		return nil, &telemetry.GeometryError{Reason: "lap has no points"}
	}
	if len(sectors) == 0 {
		return nil, &telemetry.GeometryError{Reason: "no sectors"}
	}
	out := make([]float64, len(sectors))
	for i, sec := range sectors {
		if sec.EndM < sec.StartM {
			return nil, &telemetry.GeometryError{Reason: fmt.Sprintf("sector %d is inverted", i)}
		}
		out[i] = elapsedAtDistance(lap, sec.EndM) - elapsedAtDistance(lap, sec.StartM)
	}
	return out, nil
}

// elapsedAtDistance interpolates milliseconds from lap start at the given
// distance, clamping outside the recorded range.
func elapsedAtDistance(lap *telemetry.Lap, dist float64) float64 {
	pts := lap.Points
	t0 := pts[0].TMs
	if dist <= pts[0].DistanceM {
		return 0
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].DistanceM >= dist {
			prev, cur := pts[i-1], pts[i]
			span := cur.DistanceM - prev.DistanceM
			if span <= 0 {
				return cur.TMs - t0
			}
			frac := (dist - prev.DistanceM) / span
			return prev.TMs - t0 + frac*(cur.TMs-prev.TMs)
		}
	}
	return pts[len(pts)-1].TMs - t0
}
