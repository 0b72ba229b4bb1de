//go:build !pcap
// +build !pcap

package ingest

import (
	"context"
	"strings"
	"testing"
)

func TestReplayPCAPFile_Stub(t *testing.T) {
	err := ReplayPCAPFile(context.Background(), "capture.pcap", 9940, DefaultReplayConfig(), nil, func([]byte) {})
	if err == nil {
		t.Fatal("Expected error from stub, got nil")
	}
	if !strings.Contains(err.Error(), "pcap build tag") {
		t.Errorf("Expected build tag hint in error, got: %v", err)
	}
}

func TestDefaultReplayConfig(t *testing.T) {
	config := DefaultReplayConfig()
	if config.SpeedMultiplier != 1.0 {
		t.Errorf("Expected speed multiplier 1.0, got %f", config.SpeedMultiplier)
	}
}
