// Package monitoring carries the shared diagnostic logger and per-connector
// packet statistics.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// PacketStats counts packets, bytes, emitted samples and dropped packets for
// one connector. Dropped packets are the recoverable decode failures; a
// growing dropped count with a flat sample count is the signature of a wrong
// format version or cipher variant.
type PacketStats struct {
	mu        sync.Mutex
	source    string
	packets   int64
	bytes     int64
	samples   int64
	dropped   int64
	lastReset time.Time
}

// NewPacketStats creates packet statistics for the named source.
func NewPacketStats(source string) *PacketStats {
	return &PacketStats{source: source, lastReset: time.Now()}
}

// AddPacket increments packet count and byte count.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packets++
	ps.bytes += int64(bytes)
}

// AddSample records one decoded telemetry sample.
func (ps *PacketStats) AddSample() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.samples++
}

// AddDropped increments dropped packet count.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropped++
}

// Snapshot returns the current counters: packets, bytes, samples, dropped.
func (ps *PacketStats) Snapshot() (packets, bytes, samples, dropped int64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.packets, ps.bytes, ps.samples, ps.dropped
}

// LogStats logs the counters accumulated since the last reset and resets them.
func (ps *PacketStats) LogStats() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	elapsed := time.Since(ps.lastReset).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	Logf("%s: %d packets (%d bytes, %.1f/s), %d samples, %d dropped",
		ps.source, ps.packets, ps.bytes, float64(ps.packets)/elapsed, ps.samples, ps.dropped)
	ps.packets, ps.bytes, ps.samples, ps.dropped = 0, 0, 0, 0
	ps.lastReset = time.Now()
}
