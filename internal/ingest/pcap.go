//go:build pcap
// +build pcap

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/sitwell-data/posture.report/internal/monitoring"
	"github.com/sitwell-data/posture.report/internal/pose"
)

// ReplayConfig configures PCAP replay behavior.
type ReplayConfig struct {
	// SpeedMultiplier controls replay speed (1.0 = real-time, 2.0 = 2x
	// speed, 0.5 = half speed). Zero or negative means real-time.
	SpeedMultiplier float64
}

// DefaultReplayConfig returns a real-time replay configuration.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{SpeedMultiplier: 1.0}
}

// ReplayPCAPFile replays the UDP frame traffic captured in a PCAP file,
// respecting the original packet timing. Each UDP payload on the given
// port is handed to the sink as one frame line. Useful for re-running a
// captured feed session against the live pipeline.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, config ReplayConfig, stats FrameStatsRecorder, sink FrameSink) error {
	if sink == nil {
		return fmt.Errorf("no frame sink configured")
	}
	if config.SpeedMultiplier <= 0 {
		config.SpeedMultiplier = 1.0
	}
	if stats == nil {
		stats = &noopStats{}
	}

	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("PCAP replay: BPF filter set: %s (speed: %.1fx)", filterStr, config.SpeedMultiplier)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	frameCount := 0
	startTime := time.Now()

	var firstPacketTime time.Time
	var lastPacketTime time.Time

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				// End of PCAP file
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP replay complete: %d packets, %d frames in %v (speed: %.1fx)",
					packetCount, frameCount, elapsed, config.SpeedMultiplier)
				return nil
			}

			packetCount++

			captureTime := packet.Metadata().Timestamp
			if firstPacketTime.IsZero() {
				firstPacketTime = captureTime
				lastPacketTime = captureTime
			} else {
				delay := captureTime.Sub(lastPacketTime)
				scaledDelay := time.Duration(float64(delay) / config.SpeedMultiplier)
				if scaledDelay > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(scaledDelay):
					}
				}
				lastPacketTime = captureTime
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}

			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}
			if len(payload) > pose.MaxFrameBytes {
				stats.AddError()
				continue
			}

			line := bytes.TrimRight(payload, "\r\n")
			if len(line) == 0 {
				continue
			}

			frame := make([]byte, len(line))
			copy(frame, line)
			sink(frame)
			frameCount++

			if packetCount%1000 == 0 {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP replay progress: %d packets in %v (%.0f pkt/s, speed: %.1fx)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds(), config.SpeedMultiplier)
			}
		}
	}
}
