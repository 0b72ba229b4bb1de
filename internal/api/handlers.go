package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sitwell-data/posture.report/internal/db"
	"github.com/sitwell-data/posture.report/internal/httputil"
	"github.com/sitwell-data/posture.report/internal/report"
	"github.com/sitwell-data/posture.report/internal/session"
	"github.com/sitwell-data/posture.report/internal/version"
)

// showVerdict returns the classifier's current verdict cell. Before the
// first frame the body carries valid=false but the status stays 200; a
// missing verdict is a normal state for a freshly started daemon, not a
// server fault.
func (s *Server) showVerdict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.classifier == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Classifier not running")
		return
	}
	httputil.WriteJSONOK(w, s.classifier.Snapshot())
}

// StatsResponse is the GET /api/stats body. Counters cover the window
// since the daemon's last periodic stats log.
type StatsResponse struct {
	FPS           int64   `json:"fps"`
	Frames        int64   `json:"frames"`
	Poses         int64   `json:"poses"`
	Keypoints     int64   `json:"keypoints"`
	Errors        int64   `json:"errors"`
	Dropped       int64   `json:"dropped"`
	WindowSeconds float64 `json:"window_seconds"`
	LiveClients   int     `json:"live_clients"`
	LiveDropped   uint64  `json:"live_dropped"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.stats == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Stats not running")
		return
	}

	snap := s.stats.Snapshot()
	resp := StatsResponse{
		FPS:           s.stats.CurrentFPS(),
		Frames:        snap.Frames,
		Poses:         snap.Poses,
		Keypoints:     snap.Keypoints,
		Errors:        snap.Errors,
		Dropped:       snap.Dropped,
		WindowSeconds: snap.Duration.Seconds(),
	}
	if s.hub != nil {
		resp.LiveClients = s.hub.ClientCount()
		resp.LiveDropped = s.hub.DroppedMessages()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Session store disabled")
		return
	}

	filter := db.SessionFilter{
		DeviceID: r.URL.Query().Get("device"),
		Limit:    50,
	}
	if v := r.URL.Query().Get("since_ns"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "Invalid 'since_ns' parameter")
			return
		}
		filter.SinceNs = parsed
	}
	if v := r.URL.Query().Get("until_ns"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "Invalid 'until_ns' parameter")
			return
		}
		filter.UntilNs = parsed
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		filter.Limit = parsed
	}

	sessions, err := s.store.ListSessions(filter)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

// sessionSubtree dispatches /api/sessions/{id}, /api/sessions/{id}/summary
// and /api/sessions/end by hand; the daemon targets toolchains without
// pattern-routing ServeMux.
func (s *Server) sessionSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if rest == "end" {
		s.endSession(w, r)
		return
	}

	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Session store disabled")
		return
	}

	if strings.HasSuffix(rest, "/summary") {
		id := strings.TrimSuffix(rest, "/summary")
		summary, err := s.store.GetSessionSummary(id)
		if errors.Is(err, db.ErrSessionNotFound) {
			httputil.NotFound(w, "Session not found")
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve session summary: %v", err))
			return
		}
		httputil.WriteJSONOK(w, summary)
		return
	}

	if rest == "" || strings.Contains(rest, "/") {
		httputil.NotFound(w, "Session not found")
		return
	}

	stored, err := s.store.GetSession(rest)
	if errors.Is(err, db.ErrSessionNotFound) {
		httputil.NotFound(w, "Session not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve session: %v", err))
		return
	}
	httputil.WriteJSONOK(w, stored)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.sessions == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Session tracking disabled")
		return
	}

	if !s.sessions.End(session.EndReasonManual) {
		httputil.NotFound(w, "No active session")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"ended": true, "device_id": s.deviceID})
}

// paramsPatch mirrors posture.Params with pointer fields so a POST body
// can update a subset of thresholds; absent keys keep their current
// value.
type paramsPatch struct {
	MinKeypointScore       *float64 `json:"min_keypoint_score"`
	FrontNoseDistanceMaxPx *int     `json:"front_nose_distance_max_px"`
	NeckAngleMaxDeg        *int     `json:"neck_angle_max_deg"`
	TorsoAngleMaxDeg       *int     `json:"torso_angle_max_deg"`
	ShoulderSpanMaxPx      *int     `json:"shoulder_span_max_px"`
}

func (s *Server) postureParams(w http.ResponseWriter, r *http.Request) {
	if s.classifier == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Classifier not running")
		return
	}

	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.classifier.Params())
	case http.MethodPost:
		var patch paramsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httputil.BadRequest(w, "Invalid JSON body")
			return
		}

		params := s.classifier.Params()
		if patch.MinKeypointScore != nil {
			params.MinKeypointScore = *patch.MinKeypointScore
		}
		if patch.FrontNoseDistanceMaxPx != nil {
			params.FrontNoseDistanceMaxPx = *patch.FrontNoseDistanceMaxPx
		}
		if patch.NeckAngleMaxDeg != nil {
			params.NeckAngleMaxDeg = *patch.NeckAngleMaxDeg
		}
		if patch.TorsoAngleMaxDeg != nil {
			params.TorsoAngleMaxDeg = *patch.TorsoAngleMaxDeg
		}
		if patch.ShoulderSpanMaxPx != nil {
			params.ShoulderSpanMaxPx = *patch.ShoulderSpanMaxPx
		}

		if err := s.classifier.SetParams(params); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, s.classifier.Params())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.String(),
		"device":  s.deviceID,
	})
}

// fetchSummary resolves the ?id= query against the store for the report
// handlers, writing the error response itself when the lookup fails.
func (s *Server) fetchSummary(w http.ResponseWriter, r *http.Request) (*db.SessionSummary, bool) {
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Session store disabled")
		return nil, false
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "Missing 'id' parameter")
		return nil, false
	}

	summary, err := s.store.GetSessionSummary(id)
	if errors.Is(err, db.ErrSessionNotFound) {
		httputil.NotFound(w, "Session not found")
		return nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve session: %v", err))
		return nil, false
	}
	return summary, true
}

func (s *Server) sessionReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	summary, ok := s.fetchSummary(w, r)
	if !ok {
		return
	}

	rows, err := s.store.ListRollups(db.RollupFilter{
		DeviceID: summary.Session.DeviceID,
		SinceNs:  summary.Session.StartNs,
		UntilNs:  summary.Session.EndNs,
	})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve rollups: %v", err))
		return
	}
	rollups := make([]session.Rollup, len(rows))
	for i, row := range rows {
		rollups[i] = row.Rollup
	}

	// Render into a buffer first so a chart failure can still produce a
	// clean JSON error instead of half a page.
	var buf bytes.Buffer
	if err := report.RenderSessionCharts(&buf, &summary.Session, summary.Transitions, rollups); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render report: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) sessionPlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	summary, ok := s.fetchSummary(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	err := report.RenderMetricHistogramPNG(&buf, &summary.Session, summary.Transitions)
	if errors.Is(err, report.ErrNoSamples) {
		httputil.NotFound(w, "No metric samples recorded for session")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	buf.WriteTo(w)
}
