// Package lapio serialises lap collections to CSV, NDJSON and MoTeC-flavoured
// CSV, and imports the first two back.
//
// Export cost scales with the number of channel values only: per-lap metadata
// strings are resolved once per lap and reused for every row of that lap.
package lapio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// csvBaseHeader is the fixed column prefix; extra channel columns follow in
// sorted order.
var csvBaseHeader = []string{
	"game", "car", "track", "lap_number",
	"t_ms", "distance_m", "x", "y", "speed_kmh",
	"throttle", "brake", "steer", "gear", "rpm",
}

// ExportCSV writes one row per point with flattened metadata columns.
func ExportCSV(w io.Writer, laps []*telemetry.Lap) error {
	extras := extraChannels(laps)
	cw := csv.NewWriter(w)

	header := append(append([]string(nil), csvBaseHeader...), extras...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, lap := range laps {
		// Metadata resolved once per lap, reused across all of its rows.
		record[0] = string(lap.Meta.Game)
		record[1] = lap.Meta.Car
		record[2] = lap.Meta.Track
		record[3] = strconv.FormatUint(uint64(lap.LapNumber), 10)
		for i := range lap.Points {
			p := &lap.Points[i]
			record[4] = formatFloat(p.TMs)
			record[5] = formatFloat(p.DistanceM)
			record[6] = formatFloat(p.X)
			record[7] = formatFloat(p.Y)
			record[8] = formatFloat(p.SpeedKmh)
			record[9] = formatFloat(p.Throttle)
			record[10] = formatFloat(p.Brake)
			record[11] = formatFloat(p.Steer)
			record[12] = strconv.Itoa(int(p.Gear))
			record[13] = formatFloat(p.RPM)
			for j, name := range extras {
				record[14+j] = formatFloat(p.Channels[name])
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportCSV reads laps back from the CSV layout written by ExportCSV. A new
// lap starts whenever the lap_number column changes.
func ImportCSV(r io.Reader) ([]*telemetry.Lap, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < len(csvBaseHeader) {
		return nil, fmt.Errorf("csv header has %d columns, want at least %d", len(header), len(csvBaseHeader))
	}
	for i, want := range csvBaseHeader {
		if header[i] != want {
			return nil, fmt.Errorf("csv column %d is %q, want %q", i, header[i], want)
		}
	}
	extras := header[len(csvBaseHeader):]

	var laps []*telemetry.Lap
	var current *telemetry.Lap
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		lapNumber, err := strconv.ParseUint(record[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad lap_number %q: %w", record[3], err)
		}
		if current == nil || current.LapNumber != uint32(lapNumber) {
			finishLap(current)
			current = telemetry.NewLap(telemetry.LapMeta{
				Game:  parseGame(record[0]),
				Car:   record[1],
				Track: record[2],
			}, uint32(lapNumber))
			laps = append(laps, current)
		}

		p := telemetry.Point{}
		fields := []*float64{&p.TMs, &p.DistanceM, &p.X, &p.Y, &p.SpeedKmh, &p.Throttle, &p.Brake, &p.Steer}
		for i, dst := range fields {
			v, err := strconv.ParseFloat(record[4+i], 64)
			if err != nil {
				return nil, fmt.Errorf("bad %s %q: %w", csvBaseHeader[4+i], record[4+i], err)
			}
			*dst = v
		}
		gear, err := strconv.Atoi(record[12])
		if err != nil {
			return nil, fmt.Errorf("bad gear %q: %w", record[12], err)
		}
		p.Gear = int8(gear)
		if p.RPM, err = strconv.ParseFloat(record[13], 64); err != nil {
			return nil, fmt.Errorf("bad rpm %q: %w", record[13], err)
		}
		if len(extras) > 0 {
			p.Channels = make(map[string]float64, len(extras))
			for j, name := range extras {
				if p.Channels[name], err = strconv.ParseFloat(record[14+j], 64); err != nil {
					return nil, fmt.Errorf("bad %s %q: %w", name, record[14+j], err)
				}
			}
		}
		current.Points = append(current.Points, p)
	}
	finishLap(current)
	return laps, nil
}

// finishLap derives the total time of a reconstructed lap.
func finishLap(lap *telemetry.Lap) {
	if lap == nil || len(lap.Points) == 0 {
		return
	}
	lap.TimeMs = uint64(lap.Points[len(lap.Points)-1].TMs - lap.Points[0].TMs)
}

func parseGame(s string) telemetry.Game {
	switch telemetry.Game(s) {
	case telemetry.GameF1, telemetry.GameGT7, telemetry.GameLMU:
		return telemetry.Game(s)
	}
	return telemetry.GameImported
}

// extraChannels returns the sorted union of named channels across the set.
func extraChannels(laps []*telemetry.Lap) []string {
	seen := map[string]bool{}
	for _, lap := range laps {
		for i := range lap.Points {
			for name := range lap.Points[i].Channels {
				seen[name] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ExportFile writes laps to path in the given format: "csv", "ndjson" or
// "motec". Failures are reported as IOError carrying the path.
func ExportFile(kind, path string, laps []*telemetry.Lap) error {
	f, err := os.Create(path)
	if err != nil {
		return &telemetry.IOError{Path: path, Err: err}
	}
	defer f.Close()

	switch kind {
	case "csv":
		err = ExportCSV(f, laps)
	case "ndjson":
		err = ExportNDJSON(f, laps)
	case "motec":
		err = ExportMoTeC(f, laps)
	default:
		err = fmt.Errorf("unknown export kind %q", kind)
	}
	if err != nil {
		return &telemetry.IOError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &telemetry.IOError{Path: path, Err: err}
	}
	return nil
}

// ImportFile reads laps from path, dispatching on the file extension:
// .csv or .ndjson/.jsonl.
func ImportFile(path string) ([]*telemetry.Lap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &telemetry.IOError{Path: path, Err: err}
	}
	defer f.Close()

	var laps []*telemetry.Lap
	switch ext(path) {
	case "csv":
		laps, err = ImportCSV(f)
	case "ndjson", "jsonl":
		laps, err = ImportNDJSON(f)
	default:
		err = fmt.Errorf("unsupported import format")
	}
	if err != nil {
		return nil, &telemetry.IOError{Path: path, Err: err}
	}
	return laps, nil
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}
