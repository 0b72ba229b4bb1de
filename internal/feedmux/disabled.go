package feedmux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledFeedMux is a no-op FeedMux implementation used when no feed device
// is attached (for --disable-serial, with frames arriving over UDP instead).
// It allows the server and admin routes to run without a device. Subscribers
// are tracked so their channels can be deterministically closed on
// Unsubscribe() or Close(), allowing readers to unblock predictably during
// shutdown.
type DisabledFeedMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabledFeedMux() *DisabledFeedMux {
	return &DisabledFeedMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledFeedMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledFeedMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledFeedMux) SendCommand(string) error { return nil }

func (d *DisabledFeedMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledFeedMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	// Close all subscriber channels
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}

func (d *DisabledFeedMux) Initialize() error { return nil }

func (d *DisabledFeedMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/feed-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("feed disabled"))
	})
}
