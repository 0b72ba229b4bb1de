package feedmux

import (
	"io"
	"time"
)

// FeedPorter defines the minimal interface needed for a feed device port.
// This abstraction enables unit testing without real hardware attached.
type FeedPorter interface {
	io.ReadWriter
	io.Closer
}

// FeedPortMode defines serial connection configuration parameters.
type FeedPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// DefaultFeedPortMode returns the default mode for pose feed devices. Frame
// lines run to a few kilobytes at 30fps, which needs a faster link than the
// usual sensor default.
func DefaultFeedPortMode() *FeedPortMode {
	return &FeedPortMode{
		BaudRate: 921600,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// FeedPortFactory defines an interface for creating feed device ports.
// This abstraction enables dependency injection of port creation.
type FeedPortFactory interface {
	// Open opens a feed device port at the specified path with the given mode.
	Open(path string, mode *FeedPortMode) (FeedPorter, error)
}

// FeedPortOpener is a function type for opening feed device ports.
// This allows for easier testing by replacing the opener function.
type FeedPortOpener func(path string, mode *FeedPortMode) (FeedPorter, error)

// TimeoutFeedPorter extends FeedPorter with timeout capabilities.
// This is an optional interface that ports may implement.
type TimeoutFeedPorter interface {
	FeedPorter
	// SetReadTimeout sets the read timeout for the port.
	SetReadTimeout(timeout time.Duration) error
}
