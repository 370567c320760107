package lapio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// motecHeader is the channel-naming convention consumed by MoTeC i2's CSV
// importer. Column order is fixed; time is rebased to lap start in seconds.
var motecHeader = []string{
	"Time", "LapDistance", "X", "Y", "Speed",
	"Throttle", "Brake", "Steer", "Gear", "RPM",
	"LapNumber", "Track", "Car", "Game",
}

// ExportMoTeC writes the MoTeC-compatible CSV variant. Export only: the
// format drops the named extra channels and MoTeC never hands files back.
func ExportMoTeC(w io.Writer, laps []*telemetry.Lap) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(motecHeader); err != nil {
		return err
	}

	record := make([]string, len(motecHeader))
	for _, lap := range laps {
		record[10] = strconv.FormatUint(uint64(lap.LapNumber), 10)
		record[11] = lap.Meta.Track
		record[12] = lap.Meta.Car
		record[13] = string(lap.Meta.Game)

		t0 := 0.0
		if len(lap.Points) > 0 {
			t0 = lap.Points[0].TMs
		}
		for i := range lap.Points {
			p := &lap.Points[i]
			record[0] = fmt.Sprintf("%.6f", (p.TMs-t0)/1000.0)
			record[1] = fmt.Sprintf("%.3f", p.DistanceM)
			record[2] = fmt.Sprintf("%.4f", p.X)
			record[3] = fmt.Sprintf("%.4f", p.Y)
			record[4] = fmt.Sprintf("%.3f", p.SpeedKmh)
			record[5] = fmt.Sprintf("%.3f", p.Throttle)
			record[6] = fmt.Sprintf("%.3f", p.Brake)
			record[7] = fmt.Sprintf("%.3f", p.Steer)
			record[8] = strconv.Itoa(int(p.Gear))
			record[9] = fmt.Sprintf("%.1f", p.RPM)
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
