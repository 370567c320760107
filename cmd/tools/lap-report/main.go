// lap-report renders a standalone HTML comparison report for a set of laps.
// Laps come from an exported telemetry file or straight from the lap archive
// database; the output is a self-contained page with the channel overlay,
// the delta ribbon and the derived track map.
//
// Usage:
//
//	lap-report -in laps.csv -out report.html
//	lap-report -db laps.db -out report.html -channel throttle
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/nickz-gmm/diy-delta/internal/analysis"
	"github.com/nickz-gmm/diy-delta/internal/lapdb"
	"github.com/nickz-gmm/diy-delta/internal/lapio"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
	"github.com/nickz-gmm/diy-delta/internal/units"
)

func main() {
	inFile := flag.String("in", "", "Telemetry file to load (csv or ndjson)")
	dbFile := flag.String("db", "", "Lap archive database to load instead of a file")
	outFile := flag.String("out", "report.html", "Output HTML file")
	refIdx := flag.Int("ref", 0, "Index of the reference lap")
	channel := flag.String("channel", "speed_kmh", "Channel for the overlay chart")
	flag.Parse()

	laps, err := loadLaps(*inFile, *dbFile)
	if err != nil {
		log.Fatalf("load laps: %v", err)
	}
	if len(laps) == 0 {
		log.Fatal("no laps to report on")
	}
	if *refIdx < 0 || *refIdx >= len(laps) {
		log.Fatalf("reference index %d out of range (have %d laps)", *refIdx, len(laps))
	}

	result, err := analysis.Analyze(laps, *refIdx, []string{*channel}, analysis.DefaultConfig(), trackmap.DefaultTuning())
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}

	page := components.NewPage()
	page.PageTitle = "Lap Report"
	page.AddCharts(
		overlayChart(result.Overlay, laps, *channel),
		deltaChart(result, laps),
		trackChart(result.TrackMap),
	)

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("create %s: %v", *outFile, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("render report: %v", err)
	}

	log.Printf("wrote %s: %d laps, best %s", *outFile, len(laps), units.FormatLapTime(result.Summary.BestMs))
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

func lapLabel(lap *telemetry.Lap) string {
	return fmt.Sprintf("%s lap %d (%s)", lap.Meta.Game, lap.LapNumber, units.FormatLapTime(float64(lap.TimeMs)))
}

func overlayChart(overlay *analysis.Overlay, laps []*telemetry.Lap, channel string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Channel overlay", Subtitle: channel}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: channel}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	x := make([]string, len(overlay.Distances))
	for i, d := range overlay.Distances {
		x[i] = fmt.Sprintf("%.0f", d)
	}
	line.SetXAxis(x)

	labels := make(map[string]string, len(laps))
	for _, lap := range laps {
		labels[lap.ID.String()] = lapLabel(lap)
	}
	for _, series := range overlay.Series {
		if series.Channel != channel {
			continue
		}
		data := make([]opts.LineData, len(series.Values))
		for i, v := range series.Values {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(labels[series.LapID.String()], data)
	}
	return line
}

func deltaChart(result *analysis.Result, laps []*telemetry.Lap) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Delta to reference", Subtitle: "positive = slower"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "delta (ms)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	labels := make(map[string]string, len(laps))
	for _, lap := range laps {
		labels[lap.ID.String()] = lapLabel(lap)
	}
	for ri, ribbon := range result.Ribbons {
		if ri == 0 {
			x := make([]string, len(ribbon.Points))
			for i, p := range ribbon.Points {
				x[i] = fmt.Sprintf("%.0f", p.DistanceM)
			}
			line.SetXAxis(x)
		}
		data := make([]opts.LineData, len(ribbon.Points))
		for i, p := range ribbon.Points {
			data[i] = opts.LineData{Value: p.DeltaMs}
		}
		line.AddSeries(labels[ribbon.LapID.String()], data)
	}
	return line
}

func trackChart(tm *trackmap.TrackMap) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Track map",
			Subtitle: fmt.Sprintf("%d corners, %d sectors", len(tm.Corners), len(tm.Sectors)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Min: tm.BBox.MinX, Max: tm.BBox.MaxX, Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Min: tm.BBox.MinY, Max: tm.BBox.MaxY, Name: "Y (m)"}),
	)

	line := make([]opts.ScatterData, len(tm.Polyline))
	for i, p := range tm.Polyline {
		line[i] = opts.ScatterData{Value: []interface{}{p.X, p.Y}}
	}
	scatter.AddSeries("polyline", line, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	apexes := make([]opts.ScatterData, len(tm.Corners))
	for i, c := range tm.Corners {
		apexes[i] = opts.ScatterData{Value: []interface{}{c.X, c.Y}}
	}
	scatter.AddSeries("corners", apexes, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	return scatter
}
