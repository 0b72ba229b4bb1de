package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitwell-data/posture.report/internal/overlay"
	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/posture"
	"github.com/sitwell-data/posture.report/internal/testutil"
	"github.com/sitwell-data/posture.report/internal/units"
)

func testBundle(seq uint64) *overlay.Bundle {
	frame := testutil.NewFrame(pose.FacingBack, seq, testutil.StandingPose(0.9))
	v := posture.Verdict{Valid: true, Aligned: true, Color: posture.ColorGreen}
	return overlay.BuildBundle(frame, &frame.Poses[0], v, 30, posture.DefaultMinKeypointScore)
}

// dialLive serves the hub on a test server and connects a WebSocket
// client with the given query string.
func dialLive(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/live", hub.ServeLive)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "dial %s", url)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients (have %d)", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readBundle(t *testing.T, conn *websocket.Conn) *overlay.Bundle {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err, "read bundle")

	var b overlay.Bundle
	require.NoError(t, json.Unmarshal(payload, &b))
	return &b
}

func TestServeLive_TensorBroadcast(t *testing.T) {
	t.Parallel()
	hub := NewHub(8)
	conn := dialLive(t, hub, "")
	waitForClients(t, hub, 1)

	hub.Broadcast(testBundle(42))

	got := readBundle(t, conn)
	assert.Equal(t, uint64(42), got.FrameSeq)
	assert.Empty(t, got.Space, "tensor space is the unmarked default")
	assert.Len(t, got.Keypoints, 17)
	assert.Equal(t, posture.ColorGreen, got.Verdict.Color)
}

func TestServeLive_DisplayMapping(t *testing.T) {
	t.Parallel()
	hub := NewHub(8)
	conn := dialLive(t, hub, "?space=display&w=384&h=384")
	waitForClients(t, hub, 1)

	hub.Broadcast(testBundle(1))

	got := readBundle(t, conn)
	assert.Equal(t, units.Display, got.Space)

	// The 192x192 tensor doubles into a 384x384 viewport.
	var nose *overlay.Point
	for i := range got.Keypoints {
		if got.Keypoints[i].Name == pose.Nose {
			nose = &got.Keypoints[i]
		}
	}
	require.NotNil(t, nose, "nose keypoint missing from bundle")
	assert.Equal(t, 192.0, nose.X)
	assert.Equal(t, 80.0, nose.Y)
}

func TestServeLive_RejectsBadQueries(t *testing.T) {
	t.Parallel()
	hub := NewHub(8)

	rec := httptest.NewRecorder()
	hub.ServeLive(rec, httptest.NewRequest(http.MethodGet, "/api/live?space=polar", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	hub.ServeLive(rec, httptest.NewRequest(http.MethodGet, "/api/live?space=display", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	hub.ServeLive(rec, httptest.NewRequest(http.MethodGet, "/api/live?space=display&w=384&h=0", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	hub.ServeLive(rec, httptest.NewRequest(http.MethodPost, "/api/live", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestHub_DropOnFull(t *testing.T) {
	t.Parallel()
	hub := NewHub(1)

	// A registered client with no write pump draining it.
	client := &liveClient{send: make(chan []byte, 1), space: units.Tensor}
	require.True(t, hub.register(client))

	hub.Broadcast(testBundle(1))
	hub.Broadcast(testBundle(2))
	hub.Broadcast(testBundle(3))

	assert.Equal(t, uint64(2), hub.DroppedMessages(),
		"one bundle buffered, the rest dropped without blocking")

	var b overlay.Bundle
	require.NoError(t, json.Unmarshal(<-client.send, &b))
	assert.Equal(t, uint64(1), b.FrameSeq, "the oldest buffered bundle survives")

	hub.unregister(client)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_CloseDisconnects(t *testing.T) {
	t.Parallel()
	hub := NewHub(8)
	conn := dialLive(t, hub, "")
	waitForClients(t, hub, 1)

	hub.Close()

	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, hub.register(&liveClient{send: make(chan []byte, 1)}),
		"closed hub must refuse new clients")

	// The viewer sees the connection shut down.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestMapBundle(t *testing.T) {
	t.Parallel()
	src := testBundle(5)
	srcNoseX := src.Keypoints[0].X

	mapped := mapBundle(src, units.Viewport{Width: 96, Height: 384})

	assert.Equal(t, units.Display, mapped.Space)
	assert.Equal(t, src.Keypoints[0].X/2, mapped.Keypoints[0].X, "width halves")
	assert.Equal(t, src.Keypoints[0].Y*2, mapped.Keypoints[0].Y, "height doubles")
	assert.Equal(t, srcNoseX, src.Keypoints[0].X, "source bundle must not be mutated")
	assert.Equal(t, len(src.Limbs), len(mapped.Limbs))
}
