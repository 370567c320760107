// Package gt7 ingests Gran Turismo 7's console telemetry. The console only
// streams after receiving a heartbeat byte, so the connector sends one every
// 800ms and decrypts the Salsa20-wrapped packets that come back.
package gt7

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

// consolePort is the UDP port the console listens on for heartbeats.
const consolePort = 33740

const heartbeatInterval = 800 * time.Millisecond

// Config selects the console address, the heartbeat variant and the local
// receive port.
type Config struct {
	ConsoleIP string
	Variant   byte // VariantA, VariantB or VariantTilde
	Port      int  // local bind port
}

// DefaultConfig uses the console's default ports and the A packet variant.
func DefaultConfig() Config {
	return Config{Variant: VariantA, Port: 33740}
}

// Source is the GT7 UDP connector.
type Source struct {
	cfg   Config
	stats *monitoring.PacketStats
}

func New(cfg Config) *Source {
	if cfg.Variant == 0 {
		cfg.Variant = VariantA
	}
	return &Source{cfg: cfg, stats: monitoring.NewPacketStats("gt7")}
}

// Name implements ingest.Source.
func (s *Source) Name() string { return "gt7" }

// Run sends heartbeats and receives telemetry until the context is
// cancelled. Packets that fail decryption or parsing are dropped.
func (s *Source) Run(ctx context.Context, out chan<- ingest.Sample) error {
	if s.cfg.ConsoleIP == "" {
		return &telemetry.TransportError{Source: s.Name(), Err: errors.New("console address not configured")}
	}
	consoleAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.cfg.ConsoleIP, consolePort))
	if err != nil {
		return &telemetry.TransportError{Source: s.Name(), Err: fmt.Errorf("resolve console %s: %w", s.cfg.ConsoleIP, err)}
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.Port})
	if err != nil {
		return &telemetry.TransportError{Source: s.Name(), Err: fmt.Errorf("bind :%d: %w", s.cfg.Port, err)}
	}
	defer conn.Close()

	monitoring.Logf("gt7: listening on :%d, heartbeat to %s (variant %c)", s.cfg.Port, consoleAddr, s.cfg.Variant)

	go s.heartbeat(ctx, conn, consoleAddr)
	go s.logStats(ctx)

	buffer := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
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
		sample, err := decodePacket(buffer[:n], s.cfg.Variant)
		if err != nil {
			s.stats.AddDropped()
			continue
		}
		s.stats.AddSample()
		select {
		case out <- *sample:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeat keeps the console streaming. The payload is the single variant
// byte; send failures are transient and only logged.
func (s *Source) heartbeat(ctx context.Context, conn *net.UDPConn, console *net.UDPAddr) {
	payload := []byte{s.cfg.Variant}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		if _, err := conn.WriteToUDP(payload, console); err != nil {
			monitoring.Logf("gt7: heartbeat send failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
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
