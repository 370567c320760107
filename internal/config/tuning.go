// Package config loads optional tuning overrides from a JSON file. Fields
// omitted from the file keep their compiled-in defaults, so partial configs
// are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nickz-gmm/diy-delta/internal/analysis"
	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
)

// TuningConfig is the root of the overrides file. Every field is a pointer:
// nil means "keep the default".
type TuningConfig struct {
	// Track map params
	CurvatureThreshold *float64 `json:"curvature_threshold,omitempty"`
	PeakMergeDistM     *float64 `json:"peak_merge_dist_m,omitempty"`
	SmoothWindow       *int     `json:"smooth_window,omitempty"`
	MaxPolylinePoints  *int     `json:"max_polyline_points,omitempty"`

	// Analysis params
	GridStepM           *float64 `json:"grid_step_m,omitempty"`
	CornerWindowM       *float64 `json:"corner_window_m,omitempty"`
	BrakeOnThreshold    *float64 `json:"brake_on_threshold,omitempty"`
	ThrottleOnThreshold *float64 `json:"throttle_on_threshold,omitempty"`

	// Lap builder params
	CrossRadiusM     *float64 `json:"cross_radius_m,omitempty"`
	MinLapTime       *string  `json:"min_lap_time,omitempty"` // duration string like "15s"
	MinCrossSpeedMps *float64 `json:"min_cross_speed_mps,omitempty"`
}

// LoadTuningConfig loads overrides from a JSON file. The file must have a
// .json extension and stay under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values are usable.
func (c *TuningConfig) Validate() error {
	if c.CurvatureThreshold != nil && *c.CurvatureThreshold <= 0 {
		return fmt.Errorf("curvature_threshold must be positive, got %f", *c.CurvatureThreshold)
	}
	if c.PeakMergeDistM != nil && *c.PeakMergeDistM < 0 {
		return fmt.Errorf("peak_merge_dist_m must be non-negative, got %f", *c.PeakMergeDistM)
	}
	if c.SmoothWindow != nil && *c.SmoothWindow < 0 {
		return fmt.Errorf("smooth_window must be non-negative, got %d", *c.SmoothWindow)
	}
	if c.MaxPolylinePoints != nil && *c.MaxPolylinePoints < 2 {
		return fmt.Errorf("max_polyline_points must be at least 2, got %d", *c.MaxPolylinePoints)
	}
	if c.GridStepM != nil && *c.GridStepM <= 0 {
		return fmt.Errorf("grid_step_m must be positive, got %f", *c.GridStepM)
	}
	if c.CornerWindowM != nil && *c.CornerWindowM <= 0 {
		return fmt.Errorf("corner_window_m must be positive, got %f", *c.CornerWindowM)
	}
	if c.BrakeOnThreshold != nil && (*c.BrakeOnThreshold < 0 || *c.BrakeOnThreshold > 1) {
		return fmt.Errorf("brake_on_threshold must be between 0 and 1, got %f", *c.BrakeOnThreshold)
	}
	if c.ThrottleOnThreshold != nil && (*c.ThrottleOnThreshold < 0 || *c.ThrottleOnThreshold > 1) {
		return fmt.Errorf("throttle_on_threshold must be between 0 and 1, got %f", *c.ThrottleOnThreshold)
	}
	if c.CrossRadiusM != nil && *c.CrossRadiusM <= 0 {
		return fmt.Errorf("cross_radius_m must be positive, got %f", *c.CrossRadiusM)
	}
	if c.MinLapTime != nil && *c.MinLapTime != "" {
		if _, err := time.ParseDuration(*c.MinLapTime); err != nil {
			return fmt.Errorf("invalid min_lap_time '%s': %w", *c.MinLapTime, err)
		}
	}
	return nil
}

// ApplyTrackMap overlays the set fields onto a trackmap tuning.
func (c *TuningConfig) ApplyTrackMap(t trackmap.Tuning) trackmap.Tuning {
	if c.CurvatureThreshold != nil {
		t.CurvatureThreshold = *c.CurvatureThreshold
	}
	if c.PeakMergeDistM != nil {
		t.PeakMergeDistM = *c.PeakMergeDistM
	}
	if c.SmoothWindow != nil {
		t.SmoothWindow = *c.SmoothWindow
	}
	if c.MaxPolylinePoints != nil {
		t.MaxPolylinePoints = *c.MaxPolylinePoints
	}
	return t
}

// ApplyAnalysis overlays the set fields onto an analysis config.
func (c *TuningConfig) ApplyAnalysis(a analysis.Config) analysis.Config {
	if c.GridStepM != nil {
		a.GridStepM = *c.GridStepM
	}
	if c.CornerWindowM != nil {
		a.CornerWindowM = *c.CornerWindowM
	}
	if c.BrakeOnThreshold != nil {
		a.BrakeOnThreshold = *c.BrakeOnThreshold
	}
	if c.ThrottleOnThreshold != nil {
		a.ThrottleOnThreshold = *c.ThrottleOnThreshold
	}
	return a
}

// ApplyBuilder overlays the set fields onto a lap builder config.
func (c *TuningConfig) ApplyBuilder(b ingest.BuilderConfig) ingest.BuilderConfig {
	if c.CrossRadiusM != nil {
		b.CrossRadiusM = *c.CrossRadiusM
	}
	if c.MinLapTime != nil && *c.MinLapTime != "" {
		d, err := time.ParseDuration(*c.MinLapTime)
		if err == nil {
			b.MinLapTime = d
		}
	}
	if c.MinCrossSpeedMps != nil {
		b.MinCrossSpeedMps = *c.MinCrossSpeedMps
	}
	return b
}
