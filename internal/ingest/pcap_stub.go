//go:build !pcap
// +build !pcap

package ingest

import (
	"context"
	"fmt"
)

// ReplayConfig is a stub when pcap is not available.
type ReplayConfig struct {
	SpeedMultiplier float64
}

// DefaultReplayConfig returns a real-time replay configuration.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{SpeedMultiplier: 1.0}
}

// ReplayPCAPFile is a stub that returns an error when pcap support is
// not compiled in.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, config ReplayConfig, stats FrameStatsRecorder, sink FrameSink) error {
	return fmt.Errorf("PCAP replay support not compiled in (requires pcap build tag)")
}
