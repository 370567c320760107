// track-plot renders a lap's derived track map to a PNG: the decimated
// polyline with corner apexes and sector boundaries marked. Useful for
// eyeballing corner detection against a circuit you know.
//
// Usage:
//
//	track-plot -in laps.csv -out track.png
//	track-plot -db laps.db -lap 0 -out track.png
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/nickz-gmm/diy-delta/internal/lapdb"
	"github.com/nickz-gmm/diy-delta/internal/lapio"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
)

func main() {
	inFile := flag.String("in", "", "Telemetry file to load (csv or ndjson)")
	dbFile := flag.String("db", "", "Lap archive database to load instead of a file")
	lapIdx := flag.Int("lap", 0, "Index of the lap to plot")
	outFile := flag.String("out", "track.png", "Output PNG file")
	flag.Parse()

	laps, err := loadLaps(*inFile, *dbFile)
	if err != nil {
		log.Fatalf("load laps: %v", err)
	}
	if *lapIdx < 0 || *lapIdx >= len(laps) {
		log.Fatalf("lap index %d out of range (have %d laps)", *lapIdx, len(laps))
	}
	lap := laps[*lapIdx]

	tm, err := trackmap.Build(lap, trackmap.DefaultTuning())
	if err != nil {
		log.Fatalf("build track map: %v", err)
	}

	if err := render(tm, lap, *outFile); err != nil {
		log.Fatalf("render: %v", err)
	}
	log.Printf("wrote %s: %.0f m, %d corners, %d sectors", *outFile, lap.LengthM(), len(tm.Corners), len(tm.Sectors))
}

func loadLaps(inFile, dbFile string) ([]*telemetry.Lap, error) {
	switch {
	case inFile != "":
		return lapio.ImportFile(inFile)
	case dbFile != "":
		db, err := lapdb.NewLapDB(dbFile)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.LoadLaps()
	}
	return nil, fmt.Errorf("either -in or -db is required")
}

func render(tm *trackmap.TrackMap, lap *telemetry.Lap, outFile string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s, lap %d", lap.Meta.Game, lap.Meta.Track, lap.LapNumber)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	pts := make(plotter.XYs, 0, len(tm.Polyline))
	for _, v := range tm.Polyline {
		pts = append(pts, plotter.XY{X: v.X, Y: v.Y})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("polyline: %w", err)
	}
	line.Color = color.RGBA{R: 60, G: 90, B: 200, A: 255}
	p.Add(line)

	apexes := make(plotter.XYs, 0, len(tm.Corners))
	for _, c := range tm.Corners {
		apexes = append(apexes, plotter.XY{X: c.X, Y: c.Y})
	}
	if len(apexes) > 0 {
		scatter, err := plotter.NewScatter(apexes)
		if err != nil {
			return fmt.Errorf("corners: %w", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 220, G: 40, B: 40, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("corner apex", scatter)
	}

	// Mark sector boundaries along the driven path.
	bounds := make(plotter.XYs, 0, len(tm.Sectors))
	for _, s := range tm.Sectors[1:] {
		if x, y, ok := positionAtDistance(lap, s.StartM); ok {
			bounds = append(bounds, plotter.XY{X: x, Y: y})
		}
	}
	if len(bounds) > 0 {
		scatter, err := plotter.NewScatter(bounds)
		if err != nil {
			return fmt.Errorf("sector boundaries: %w", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 30, G: 160, B: 60, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add("sector boundary", scatter)
	}

	return p.Save(8*vg.Inch, 8*vg.Inch, outFile)
}

func positionAtDistance(lap *telemetry.Lap, dist float64) (float64, float64, bool) {
	for i := 1; i < len(lap.Points); i++ {
		if lap.Points[i].DistanceM >= dist {
			return lap.Points[i].X, lap.Points[i].Y, true
		}
	}
	return 0, 0, false
}
