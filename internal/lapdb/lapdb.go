// Package lapdb archives committed laps in sqlite so a session survives a
// restart. The archive is write-behind: the in-memory lap store stays the
// source of truth while a session is live, and the database is loaded once at
// startup.
package lapdb

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

type LapDB struct {
	*sql.DB
}

// schema.sql defines the laps and lap_points tables.
//
//go:embed schema.sql
var schemaSQL string

func NewLapDB(path string) (*LapDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply lap schema: %w", err)
	}
	return &LapDB{db}, nil
}

// SaveLap persists one lap and all of its points in a single transaction.
func (ldb *LapDB) SaveLap(lap *telemetry.Lap) error {
	tx, err := ldb.Begin()
	if err != nil {
		return fmt.Errorf("begin lap save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO laps (lap_id, game, car, track, lap_number, time_ms) VALUES (?, ?, ?, ?, ?, ?)",
		lap.ID.String(), string(lap.Meta.Game), lap.Meta.Car, lap.Meta.Track, lap.LapNumber, lap.TimeMs,
	)
	if err != nil {
		return fmt.Errorf("insert lap %s: %w", lap.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO lap_points (lap_id, ord, t_ms, distance_m, x, y, speed_kmh, throttle, brake, steer, gear, rpm, channels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare point insert: %w", err)
	}
	defer stmt.Close()

	for i := range lap.Points {
		p := &lap.Points[i]
		var channels any
		if len(p.Channels) > 0 {
			encoded, err := json.Marshal(p.Channels)
			if err != nil {
				return fmt.Errorf("encode channels for point %d: %w", i, err)
			}
			channels = string(encoded)
		}
		_, err := stmt.Exec(lap.ID.String(), i, p.TMs, p.DistanceM, p.X, p.Y,
			p.SpeedKmh, p.Throttle, p.Brake, p.Steer, p.Gear, p.RPM, channels)
		if err != nil {
			return fmt.Errorf("insert point %d of lap %s: %w", i, lap.ID, err)
		}
	}

	return tx.Commit()
}

// LoadLaps reads every archived lap back, points in recorded order.
func (ldb *LapDB) LoadLaps() ([]*telemetry.Lap, error) {
	rows, err := ldb.Query("SELECT lap_id, game, car, track, lap_number, time_ms FROM laps ORDER BY created_at, lap_id")
	if err != nil {
		return nil, fmt.Errorf("query laps: %w", err)
	}
	defer rows.Close()

	var laps []*telemetry.Lap
	for rows.Next() {
		var idStr, game string
		lap := &telemetry.Lap{}
		if err := rows.Scan(&idStr, &game, &lap.Meta.Car, &lap.Meta.Track, &lap.LapNumber, &lap.TimeMs); err != nil {
			return nil, fmt.Errorf("scan lap: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("lap id %q: %w", idStr, err)
		}
		lap.ID = id
		lap.Meta.Game = telemetry.Game(game)
		laps = append(laps, lap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, lap := range laps {
		if err := ldb.loadPoints(lap); err != nil {
			return nil, err
		}
	}
	return laps, nil
}

func (ldb *LapDB) loadPoints(lap *telemetry.Lap) error {
	rows, err := ldb.Query(`
		SELECT t_ms, distance_m, x, y, speed_kmh, throttle, brake, steer, gear, rpm, channels
		FROM lap_points WHERE lap_id = ? ORDER BY ord
	`, lap.ID.String())
	if err != nil {
		return fmt.Errorf("query points of lap %s: %w", lap.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p telemetry.Point
		var channels sql.NullString
		err := rows.Scan(&p.TMs, &p.DistanceM, &p.X, &p.Y, &p.SpeedKmh,
			&p.Throttle, &p.Brake, &p.Steer, &p.Gear, &p.RPM, &channels)
		if err != nil {
			return fmt.Errorf("scan point of lap %s: %w", lap.ID, err)
		}
		if channels.Valid && channels.String != "" {
			if err := json.Unmarshal([]byte(channels.String), &p.Channels); err != nil {
				return fmt.Errorf("decode channels of lap %s: %w", lap.ID, err)
			}
		}
		lap.Points = append(lap.Points, p)
	}
	return rows.Err()
}

// LapCount reports the number of archived laps.
func (ldb *LapDB) LapCount() (int, error) {
	var n int
	err := ldb.QueryRow("SELECT COUNT(*) FROM laps").Scan(&n)
	return n, err
}
