package lapio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// ndjsonRecord is one exported point with its lap metadata embedded, so any
// line of the file is self-describing.
type ndjsonRecord struct {
	Game      telemetry.Game `json:"game"`
	Car       string         `json:"car"`
	Track     string         `json:"track"`
	LapNumber uint32         `json:"lap_number"`
	telemetry.Point
}

// ExportNDJSON writes one JSON object per point.
func ExportNDJSON(w io.Writer, laps []*telemetry.Lap) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, lap := range laps {
		// The record's metadata fields are set once per lap; only the point
		// changes between rows.
		rec := ndjsonRecord{
			Game:      lap.Meta.Game,
			Car:       lap.Meta.Car,
			Track:     lap.Meta.Track,
			LapNumber: lap.LapNumber,
		}
		for i := range lap.Points {
			rec.Point = lap.Points[i]
			if err := enc.Encode(&rec); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// ImportNDJSON reads laps back, starting a new lap whenever the lap_number
// field changes between consecutive records.
func ImportNDJSON(r io.Reader) ([]*telemetry.Lap, error) {
	var laps []*telemetry.Lap
	var current *telemetry.Lap

	dec := json.NewDecoder(r)
	line := 0
	for {
		var rec ndjsonRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("record %d: %w", line+1, err)
		}
		line++

		if current == nil || current.LapNumber != rec.LapNumber {
			finishLap(current)
			current = telemetry.NewLap(telemetry.LapMeta{
				Game:  parseGame(string(rec.Game)),
				Car:   rec.Car,
				Track: rec.Track,
			}, rec.LapNumber)
			laps = append(laps, current)
		}
		current.Points = append(current.Points, rec.Point)
	}
	finishLap(current)
	return laps, nil
}
