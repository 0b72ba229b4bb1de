// Package api exposes the posture daemon over HTTP: verdict and stats
// snapshots, session queries, runtime tuning of classifier thresholds,
// rendered session reports, and a live WebSocket overlay feed.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sitwell-data/posture.report/internal/db"
	"github.com/sitwell-data/posture.report/internal/posture"
	"github.com/sitwell-data/posture.report/internal/session"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Config wires the daemon's subsystems into the HTTP surface. Store, Hub
// and Sessions may be nil; the routes that need them answer 503 instead.
type Config struct {
	Classifier *posture.Classifier
	Stats      *posture.FrameStats
	Sessions   *session.Manager
	Store      *db.DB
	Hub        *Hub
	DeviceID   string
}

type Server struct {
	classifier *posture.Classifier
	stats      *posture.FrameStats
	sessions   *session.Manager
	store      *db.DB
	hub        *Hub
	deviceID   string
}

func NewServer(cfg Config) *Server {
	return &Server{
		classifier: cfg.Classifier,
		stats:      cfg.Stats,
		sessions:   cfg.Sessions,
		store:      cfg.Store,
		hub:        cfg.Hub,
		deviceID:   cfg.DeviceID,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/verdict", s.showVerdict)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.sessionSubtree)
	mux.HandleFunc("/api/posture/params", s.postureParams)
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/reports/session", s.sessionReport)
	mux.HandleFunc("/reports/session/plot", s.sessionPlot)
	if s.hub != nil {
		mux.HandleFunc("/api/live", s.hub.ServeLive)
	}
	return mux
}
