package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nickz-gmm/diy-delta/internal/analysis"
	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTuningConfigPartial(t *testing.T) {
	path := writeConfig(t, `{"curvature_threshold": 0.01, "grid_step_m": 2.5, "min_lap_time": "30s"}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.CurvatureThreshold == nil || *cfg.CurvatureThreshold != 0.01 {
		t.Errorf("CurvatureThreshold = %v, want 0.01", cfg.CurvatureThreshold)
	}
	if cfg.PeakMergeDistM != nil {
		t.Errorf("PeakMergeDistM should stay nil for omitted fields, got %v", *cfg.PeakMergeDistM)
	}

	// Omitted fields keep their defaults through the overlay.
	tm := cfg.ApplyTrackMap(trackmap.DefaultTuning())
	if tm.CurvatureThreshold != 0.01 {
		t.Errorf("overlay CurvatureThreshold = %f, want 0.01", tm.CurvatureThreshold)
	}
	if tm.PeakMergeDistM != trackmap.DefaultTuning().PeakMergeDistM {
		t.Errorf("overlay changed an omitted field: %f", tm.PeakMergeDistM)
	}

	a := cfg.ApplyAnalysis(analysis.DefaultConfig())
	if a.GridStepM != 2.5 {
		t.Errorf("overlay GridStepM = %f, want 2.5", a.GridStepM)
	}
	if a.CornerWindowM != analysis.DefaultConfig().CornerWindowM {
		t.Errorf("overlay changed an omitted field: %f", a.CornerWindowM)
	}

	b := cfg.ApplyBuilder(ingest.DefaultBuilderConfig())
	if b.MinLapTime != 30*time.Second {
		t.Errorf("overlay MinLapTime = %v, want 30s", b.MinLapTime)
	}
	if b.CrossRadiusM != ingest.DefaultBuilderConfig().CrossRadiusM {
		t.Errorf("overlay changed an omitted field: %f", b.CrossRadiusM)
	}
}

func TestLoadTuningConfigEmpty(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tm := cfg.ApplyTrackMap(trackmap.DefaultTuning())
	if tm != trackmap.DefaultTuning() {
		t.Errorf("empty config changed the defaults: %+v", tm)
	}
}

func TestLoadTuningConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"negative curvature threshold", `{"curvature_threshold": -0.1}`},
		{"zero grid step", `{"grid_step_m": 0}`},
		{"brake threshold above one", `{"brake_on_threshold": 1.5}`},
		{"bad duration", `{"min_lap_time": "soon"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Error("expected load to fail")
			}
		})
	}
}

func TestLoadTuningConfigPathChecks(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("non-json extension accepted")
	}
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file accepted")
	}
}
