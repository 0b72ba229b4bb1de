package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sitwell-data/posture.report/internal/httputil"
	"github.com/sitwell-data/posture.report/internal/overlay"
	"github.com/sitwell-data/posture.report/internal/units"
)

const (
	liveWriteWait = 10 * time.Second
	livePongWait  = 60 * time.Second
	// Pings must arrive inside the pong window or the read deadline
	// fires first.
	livePingPeriod = 54 * time.Second
	liveReadLimit  = 512
)

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveClient is one WebSocket viewer. send is buffered; Broadcast drops
// bundles for clients that cannot drain fast enough rather than stalling
// the frame pipeline.
type liveClient struct {
	conn *websocket.Conn
	send chan []byte

	space    string
	viewport units.Viewport
}

// Hub fans overlay bundles out to live WebSocket viewers.
type Hub struct {
	sendBuffer int

	mu      sync.Mutex
	clients map[*liveClient]bool
	closed  bool

	dropped atomic.Uint64
}

// NewHub creates a hub whose clients each buffer up to sendBuffer
// bundles.
func NewHub(sendBuffer int) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &Hub{
		sendBuffer: sendBuffer,
		clients:    make(map[*liveClient]bool),
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// DroppedMessages returns the number of bundles lost to full client
// buffers since startup.
func (h *Hub) DroppedMessages() uint64 {
	return h.dropped.Load()
}

// Broadcast pushes one bundle to every connected viewer. It is wired as
// the pipeline's publish hook and must never block frame processing.
func (h *Hub) Broadcast(b *overlay.Bundle) {
	if b == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	// Marshal once for all tensor-space viewers; display-space viewers
	// each get their own viewport mapping.
	var tensorPayload []byte
	for client := range h.clients {
		var payload []byte
		if client.space == units.Display {
			payload = marshalBundle(mapBundle(b, client.viewport))
		} else {
			if tensorPayload == nil {
				tensorPayload = marshalBundle(b)
			}
			payload = tensorPayload
		}
		if payload == nil {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.dropped.Add(1)
		}
	}
}

// Close disconnects all viewers and refuses further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) register(c *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = true
	log.Printf("Live viewer connected (space=%s, total=%d)", c.space, len(h.clients))
	return true
}

func (h *Hub) unregister(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	log.Printf("Live viewer disconnected (total=%d)", len(h.clients))
}

func marshalBundle(b *overlay.Bundle) []byte {
	payload, err := json.Marshal(b)
	if err != nil {
		log.Printf("Failed to marshal overlay bundle: %v", err)
		return nil
	}
	return payload
}

// mapBundle copies b with keypoints scaled into the viewport. Limbs
// reference keypoints by name and need no mapping.
func mapBundle(b *overlay.Bundle, vp units.Viewport) *overlay.Bundle {
	mapped := *b
	mapped.Space = units.Display
	mapped.Keypoints = make([]overlay.Point, len(b.Keypoints))
	for i, kp := range b.Keypoints {
		kp.X, kp.Y = units.MapPoint(kp.X, kp.Y, b.TensorW, b.TensorH, vp)
		mapped.Keypoints[i] = kp
	}
	return &mapped
}

// ServeLive upgrades the request and streams overlay bundles until the
// viewer goes away. An optional ?space=display&w=&h= query maps
// keypoints into the viewer's viewport before sending.
func (h *Hub) ServeLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	space := r.URL.Query().Get("space")
	if space == "" {
		space = units.Tensor
	}
	if !units.IsValid(space) {
		httputil.BadRequest(w, fmt.Sprintf("Invalid 'space' parameter; valid spaces: %s", units.GetValidSpacesString()))
		return
	}

	var vp units.Viewport
	if space == units.Display {
		width, errW := strconv.Atoi(r.URL.Query().Get("w"))
		height, errH := strconv.Atoi(r.URL.Query().Get("h"))
		if errW != nil || errH != nil || width < 1 || height < 1 {
			httputil.BadRequest(w, "Display space requires positive 'w' and 'h' parameters")
			return
		}
		vp = units.Viewport{Width: width, Height: height}
	}

	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &liveClient{
		conn:     conn,
		send:     make(chan []byte, h.sendBuffer),
		space:    space,
		viewport: vp,
	}
	if !h.register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(h)
}

// readPump discards inbound messages and keeps the read deadline fresh
// from pongs. It returns when the viewer disconnects.
func (c *liveClient) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(liveReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(livePongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
