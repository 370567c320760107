// Package lmu ingests Le Mans Ultimate telemetry through the rFactor 2
// shared-memory plugin. The plugin rewrites a fixed struct in place, guarded
// by matching version counters at both ends; the connector polls the mapping
// and skips torn frames.
package lmu

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/monitoring"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// mappingName is the buffer the rF2SharedMemoryMapPlugin creates. Under
// Wine/Proton it surfaces as a file in /dev/shm.
const mappingName = "$rFactor2SMMP_Telemetry$"

const defaultPollInterval = 20 * time.Millisecond

// Config selects the mapping file and the poll cadence.
type Config struct {
	MappingPath  string
	PollInterval time.Duration
}

// DefaultConfig polls the plugin's mapping at 50 Hz.
func DefaultConfig() Config {
	return Config{
		MappingPath:  filepath.Join("/dev/shm", mappingName),
		PollInterval: defaultPollInterval,
	}
}

// Source is the LMU shared-memory connector.
type Source struct {
	cfg   Config
	stats *monitoring.PacketStats
}

func New(cfg Config) *Source {
	if cfg.MappingPath == "" {
		cfg.MappingPath = DefaultConfig().MappingPath
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Source{cfg: cfg, stats: monitoring.NewPacketStats("lmu")}
}

// Name implements ingest.Source.
func (s *Source) Name() string { return "lmu" }

// Run polls the mapping until the context is cancelled. A missing mapping is
// a TransportError so the caller can tell "plugin not running" from a decode
// problem.
func (s *Source) Run(ctx context.Context, out chan<- ingest.Sample) error {
	f, err := os.Open(s.cfg.MappingPath)
	if err != nil {
		return &telemetry.TransportError{
			Source: s.Name(),
			Err:    fmt.Errorf("open telemetry mapping %s (is the shared-memory plugin enabled?): %w", s.cfg.MappingPath, err),
		}
	}
	defer f.Close()

	monitoring.Logf("lmu: polling %s every %v", s.cfg.MappingPath, s.cfg.PollInterval)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	buf := make([]byte, frameSize)
	var lastSimTime float64
	emitted := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := f.ReadAt(buf, 0)
		if err != nil && n < frameSize {
			return &telemetry.TransportError{Source: s.Name(), Err: fmt.Errorf("read mapping: %w", err)}
		}
		s.stats.AddPacket(frameSize)

		frame, ok := parseFrame(buf)
		if !ok {
			// Torn write, the plugin was mid-update. The next poll
			// will see a settled frame.
			s.stats.AddDropped()
			continue
		}
		// The game pauses between sessions; only emit advancing time so
		// the lap builder never sees duplicate samples.
		if emitted && frame.SimTimeS <= lastSimTime {
			continue
		}
		lastSimTime = frame.SimTimeS
		emitted = true

		s.stats.AddSample()
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// speedFromVelocity is the magnitude of the local velocity vector.
func speedFromVelocity(vx, vy, vz float64) float64 {
	return math.Sqrt(vx*vx + vy*vy + vz*vz)
}
