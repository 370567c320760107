// Package f1 ingests the F1 games' UDP telemetry protocol. Packets are
// fixed-layout little-endian structs demultiplexed by a packet-type id in a
// shared header; motion, lap-data and car-telemetry packets for the player's
// car index merge into one sample stream.
package f1

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/monitoring"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// Config selects the UDP bind port and the packet format year.
type Config struct {
	Port          int
	FormatVersion int // 2024 or 2025
}

// DefaultConfig matches the game's default broadcast target.
func DefaultConfig() Config {
	return Config{Port: 20777, FormatVersion: 2025}
}

// Source is the F1 UDP connector.
type Source struct {
	cfg     Config
	stats   *monitoring.PacketStats
	decoder *decoder
}

// New creates an F1 source. The format version picks the offset layout;
// unknown years fall back to the latest known layout.
func New(cfg Config) *Source {
	return &Source{
		cfg:     cfg,
		stats:   monitoring.NewPacketStats("f1"),
		decoder: newDecoder(layoutForFormat(cfg.FormatVersion)),
	}
}

// Name implements ingest.Source.
func (s *Source) Name() string { return "f1" }

// Run listens for UDP packets until the context is cancelled. Malformed
// packets are dropped; a lost socket surfaces as a TransportError.
func (s *Source) Run(ctx context.Context, out chan<- ingest.Sample) error {
	addr := &net.UDPAddr{Port: s.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return &telemetry.TransportError{Source: s.Name(), Err: fmt.Errorf("bind :%d: %w", s.cfg.Port, err)}
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(1 << 20); err != nil {
		monitoring.Logf("f1: failed to set receive buffer: %v", err)
	}
	monitoring.Logf("f1: listening on :%d (format %d)", s.cfg.Port, s.cfg.FormatVersion)

	go s.logStats(ctx)

	buffer := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// Short read deadline so context cancellation is noticed promptly.
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return &telemetry.TransportError{Source: s.Name(), Err: err}
		}
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return &telemetry.TransportError{Source: s.Name(), Err: err}
		}

		s.stats.AddPacket(n)
		sample, err := s.decoder.decode(buffer[:n])
		if err != nil {
			// A single bad packet never terminates the stream.
			s.stats.AddDropped()
			continue
		}
		if sample == nil {
			continue // packet kind we don't consume
		}
		s.stats.AddSample()
		select {
		case out <- *sample:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Source) logStats(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.stats.LogStats()
		}
	}
}
