//go:build pcap
// +build pcap

// Command pcap-replay extracts pose frame datagrams from a packet
// capture and resends them over UDP with the captured timing. Useful for
// feeding the daemon from a tcpdump taken next to an estimator device.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"

	"github.com/sitwell-data/posture.report/internal/ingest"
)

func main() {
	pcapFile := flag.String("pcap", "", "PCAP file to replay (required)")
	filterPort := flag.Int("filter-port", 9940, "UDP port the frames were captured on")
	to := flag.String("to", "127.0.0.1:9940", "UDP destination for replayed frames")
	rate := flag.Float64("rate", 1.0, "Replay speed multiplier")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}

	conn, err := net.Dial("udp", *to)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *to, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sent := 0
	sink := func(line []byte) {
		if _, err := conn.Write(line); err != nil {
			log.Printf("UDP send failed: %v", err)
			return
		}
		sent++
	}

	config := ingest.ReplayConfig{SpeedMultiplier: *rate}
	if err := ingest.ReplayPCAPFile(ctx, *pcapFile, *filterPort, config, nil, sink); err != nil && err != context.Canceled {
		log.Fatalf("Replay failed: %v", err)
	}
	log.Printf("✓ Replayed %d frames to %s", sent, *to)
}
