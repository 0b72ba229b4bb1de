// Package ingest receives pose frame lines over the network.
//
// Feed devices that are not cabled to the host stream the same
// newline-delimited JSON they would write to the serial port as UDP
// datagrams, one frame per datagram. The listener copies each datagram
// onto a buffered channel for the pipeline to drain; a full channel
// drops the frame rather than stalling the read loop.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sitwell-data/posture.report/internal/monitoring"
	"github.com/sitwell-data/posture.report/internal/pose"
)

// DefaultAddress is the UDP bind address used when none is configured.
const DefaultAddress = ":9940"

// FrameSink receives one frame line per call. Lines are handed over
// without the trailing newline.
type FrameSink func(line []byte)

// FrameStatsRecorder counts datagram-level events for the periodic
// stats log. *posture.FrameStats satisfies it.
type FrameStatsRecorder interface {
	AddError()
	AddDropped()
	LogStats()
}

// noopStats discards all recordings. Used when no stats recorder is
// configured.
type noopStats struct{}

func (n *noopStats) AddError()   {}
func (n *noopStats) AddDropped() {}
func (n *noopStats) LogStats()   {}

// UDPListenerConfig holds configuration for creating a UDPListener.
type UDPListenerConfig struct {
	Address         string             // host:port to bind, e.g. ":9940"
	RcvBuf          int                // kernel receive buffer size in bytes
	ChannelCapacity int                // frames buffered between the read loop and the consumer
	Stats           FrameStatsRecorder // optional stats recorder
	LogInterval     time.Duration      // how often to log stats (default 1 minute)
}

// UDPListener receives pose frames over UDP and publishes them on a
// channel.
type UDPListener struct {
	address     string
	rcvBuf      int
	stats       FrameStatsRecorder
	logInterval time.Duration

	frames chan []byte

	mu      sync.Mutex
	conn    *net.UDPConn
	closing bool
}

// NewUDPListener creates a UDP listener from the given config, applying
// defaults for any zero fields.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.LogInterval == 0 {
		config.LogInterval = time.Minute
	}
	if config.Stats == nil {
		config.Stats = &noopStats{}
	}
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = 256
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		stats:       config.Stats,
		logInterval: config.LogInterval,
		frames:      make(chan []byte, config.ChannelCapacity),
	}
}

// Frames returns the channel frame lines are published on. The channel
// is never closed; consumers should also select on their context.
func (l *UDPListener) Frames() <-chan []byte {
	return l.frames
}

// Addr returns the bound local address, or nil before Start has bound
// the socket. Useful with an ":0" address.
func (l *UDPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start binds the socket and runs the read loop until the context is
// cancelled or Close is called. It blocks, so run it in a goroutine.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("resolve UDP address %q: %w", l.address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen UDP %q: %w", l.address, err)
	}

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Failed to set UDP receive buffer to %d bytes: %v", l.rcvBuf, err)
		}
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	monitoring.Logf("Listening for pose frames on UDP %s", conn.LocalAddr())

	l.startStatsLogging(ctx)

	// One datagram carries one frame line. The buffer is one byte
	// larger than the wire cap so an oversized datagram shows up as
	// n > MaxFrameBytes instead of being silently truncated.
	buf := make([]byte, pose.MaxFrameBytes+1)
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			l.mu.Lock()
			closing := l.closing
			l.mu.Unlock()
			if closing {
				return nil
			}
			return fmt.Errorf("UDP read: %w", err)
		}

		l.handleDatagram(buf[:n])
	}
}

// handleDatagram validates one datagram and publishes it as a frame
// line. Oversized datagrams count as errors; a full channel counts as a
// drop.
func (l *UDPListener) handleDatagram(datagram []byte) {
	if len(datagram) > pose.MaxFrameBytes {
		l.stats.AddError()
		return
	}

	line := bytes.TrimRight(datagram, "\r\n")
	if len(line) == 0 {
		return
	}

	frame := make([]byte, len(line))
	copy(frame, line)

	select {
	case l.frames <- frame:
	default:
		l.stats.AddDropped()
	}
}

// startStatsLogging logs an early report shortly after startup, then
// settles into the configured interval.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	go func() {
		initial := time.NewTimer(2 * time.Second)
		defer initial.Stop()
		select {
		case <-ctx.Done():
			return
		case <-initial.C:
			l.stats.LogStats()
		}

		ticker := time.NewTicker(l.logInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.stats.LogStats()
			}
		}
	}()
}

// Close shuts down the socket. Safe to call more than once and with no
// socket bound.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return nil
	}
	l.closing = true
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
