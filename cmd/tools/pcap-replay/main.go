// pcap-replay resends captured simulator UDP traffic to a local connector.
// Capture a session with tcpdump while driving, then replay it against the
// engine to reproduce ingest behaviour without the game running.
//
// Usage:
//
//	pcap-replay -pcap session.pcap -port 20777 -target 127.0.0.1:20777 -speed 1.0
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	pcapFile := flag.String("pcap", "", "PCAP file to replay (required)")
	port := flag.Int("port", 20777, "Only replay UDP packets with this destination port")
	target := flag.String("target", "127.0.0.1:20777", "Address to resend payloads to")
	speed := flag.Float64("speed", 1.0, "Replay speed multiplier (0 = as fast as possible)")
	flag.Parse()

	if *pcapFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := replay(*pcapFile, *port, *target, *speed); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

func replay(pcapFile string, port int, target string, speed float64) error {
	f, err := os.Open(pcapFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", pcapFile, err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("read pcap header: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return fmt.Errorf("resolve target %s: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	var sent, skipped int
	var lastCapture time.Time
	start := time.Now()
	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			// pcapgo returns io.EOF at the end of the capture.
			break
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			skipped++
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if int(udp.DstPort) != port || len(udp.Payload) == 0 {
			skipped++
			continue
		}

		// Pace packets by their capture timestamps.
		if speed > 0 && !lastCapture.IsZero() {
			gap := ci.Timestamp.Sub(lastCapture)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / speed))
			}
		}
		lastCapture = ci.Timestamp

		if _, err := conn.Write(udp.Payload); err != nil {
			return fmt.Errorf("send packet %d: %w", sent, err)
		}
		sent++
	}

	log.Printf("replayed %d packets (%d skipped) in %v", sent, skipped, time.Since(start))
	return nil
}
