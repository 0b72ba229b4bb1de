// Package session groups classified frames into monitoring sessions and
// aggregates their posture metrics.
//
// A session opens on the first classified frame and closes when the feed
// goes quiet for the idle timeout, so one sitting at the desk becomes one
// session row. Completed sessions are handed to a sink for persistence.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/posture"
	"github.com/sitwell-data/posture.report/internal/timeutil"
)

// Reasons a session ended.
const (
	EndReasonIdle     = "idle"
	EndReasonShutdown = "shutdown"
	EndReasonManual   = "manual"
)

// Metric names recorded on transitions, one per camera facing.
const (
	MetricNeckAngleDeg = "neck_angle_deg"
	MetricNoseOffsetPx = "nose_offset_px"
)

// Session is one continuous period of posture monitoring.
type Session struct {
	ID            string  `json:"session_id"`
	DeviceID      string  `json:"device_id"`
	StartNs       int64   `json:"start_ns"`
	EndNs         int64   `json:"end_ns"`
	Frames        int64   `json:"frames"`
	AlignedFrames int64   `json:"aligned_frames"`
	AlignedRatio  float64 `json:"aligned_ratio"`
	Transitions   int     `json:"transitions"`

	// Percentiles of the held verdict's measurements, sampled per frame.
	// Neck angles come from back-facing frames, nose offsets from
	// front-facing ones; a single-facing session leaves the other set at
	// zero.
	P50NeckDeg      float64 `json:"p50_neck_deg"`
	P85NeckDeg      float64 `json:"p85_neck_deg"`
	P95NeckDeg      float64 `json:"p95_neck_deg"`
	P50NoseOffsetPx float64 `json:"p50_nose_offset_px"`
	P85NoseOffsetPx float64 `json:"p85_nose_offset_px"`
	P95NoseOffsetPx float64 `json:"p95_nose_offset_px"`

	EndReason string `json:"end_reason,omitempty"`
}

// Sink receives completed sessions.
type Sink func(*Session)

// Transition is one verdict colour change inside a session. The first
// valid verdict of a session is recorded as a transition from the empty
// colour.
type Transition struct {
	SessionID string  `json:"session_id"`
	TsNs      int64   `json:"ts_ns"`
	Aligned   bool    `json:"aligned"`
	Color     string  `json:"color"`
	FromColor string  `json:"from_color,omitempty"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
}

// TransitionSink receives verdict transitions as they happen.
type TransitionSink func(*Transition)

// Config holds session manager settings.
type Config struct {
	DeviceID     string
	IdleTimeout  time.Duration  // frame gap that closes a session
	OnTransition TransitionSink // optional, called on verdict colour changes
}

// Manager owns the active session. The frame pipeline feeds it one
// verdict per classified frame; readers may snapshot the active session
// at any time.
type Manager struct {
	mu           sync.Mutex
	clock        timeutil.Clock
	deviceID     string
	idleTimeout  time.Duration
	sink         Sink
	onTransition TransitionSink

	active *activeSession
}

type activeSession struct {
	id          string
	startNs     int64
	lastFrameNs int64

	frames        int64
	alignedFrames int64
	transitions   int
	lastColor     string

	neckSamples []float64
	noseSamples []float64
}

// NewManager creates a session manager. A nil clock uses the real clock;
// a nil sink discards completed sessions.
func NewManager(cfg Config, clock timeutil.Clock, sink Sink) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if sink == nil {
		sink = func(*Session) {}
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	onTransition := cfg.OnTransition
	if onTransition == nil {
		onTransition = func(*Transition) {}
	}
	return &Manager{
		clock:        clock,
		deviceID:     cfg.DeviceID,
		idleTimeout:  cfg.IdleTimeout,
		sink:         sink,
		onTransition: onTransition,
	}
}

// RecordVerdict folds one classified frame into the active session,
// opening one if needed. A frame gap longer than the idle timeout closes
// the previous session first. Timestamps are the frame's own, so
// replayed clips produce sessions with their recorded timeline.
func (m *Manager) RecordVerdict(v posture.Verdict, facing pose.Facing, tsNanos int64) {
	m.mu.Lock()

	var ended *Session
	if m.active != nil && tsNanos-m.active.lastFrameNs > m.idleTimeout.Nanoseconds() {
		ended = m.finalize(EndReasonIdle)
	}

	if m.active == nil {
		m.active = &activeSession{
			id:          "ses_" + uuid.NewString(),
			startNs:     tsNanos,
			lastFrameNs: tsNanos,
		}
	}

	s := m.active
	s.lastFrameNs = tsNanos
	s.frames++

	var tr *Transition
	if v.Valid {
		if v.Aligned {
			s.alignedFrames++
		}
		if v.Color != s.lastColor {
			if s.lastColor != "" {
				s.transitions++
			}
			metric, value := MetricNoseOffsetPx, float64(v.NoseOffsetPx)
			if facing == pose.FacingBack {
				metric, value = MetricNeckAngleDeg, float64(v.NeckAngleDeg)
			}
			tr = &Transition{
				SessionID: s.id,
				TsNs:      tsNanos,
				Aligned:   v.Aligned,
				Color:     v.Color,
				FromColor: s.lastColor,
				Metric:    metric,
				Value:     value,
			}
		}
		s.lastColor = v.Color

		switch facing {
		case pose.FacingBack:
			s.neckSamples = append(s.neckSamples, float64(v.NeckAngleDeg))
		case pose.FacingFront:
			s.noseSamples = append(s.noseSamples, float64(v.NoseOffsetPx))
		}
	}

	m.mu.Unlock()

	if ended != nil {
		m.sink(ended)
	}
	if tr != nil {
		m.onTransition(tr)
	}
}

// CheckIdle closes the active session when no frame has arrived for the
// idle timeout, judged against the manager's clock. Intended to be
// driven by a ticker so the last session of the day does not stay open
// until the next frame. Reports whether a session was closed.
func (m *Manager) CheckIdle() bool {
	nowNs := m.clock.Now().UnixNano()

	m.mu.Lock()
	var ended *Session
	if m.active != nil && nowNs-m.active.lastFrameNs > m.idleTimeout.Nanoseconds() {
		ended = m.finalize(EndReasonIdle)
	}
	m.mu.Unlock()

	if ended != nil {
		m.sink(ended)
		return true
	}
	return false
}

// End closes the active session with the given reason. Reports false
// when no session was active.
func (m *Manager) End(reason string) bool {
	m.mu.Lock()
	ended := m.finalize(reason)
	m.mu.Unlock()

	if ended != nil {
		m.sink(ended)
		return true
	}
	return false
}

// Active returns a snapshot of the in-progress session.
func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Session{}, false
	}
	return m.active.snapshot(m.deviceID, ""), true
}

// finalize closes the active session and returns it. Callers hold the
// lock and deliver to the sink after releasing it.
func (m *Manager) finalize(reason string) *Session {
	if m.active == nil {
		return nil
	}
	s := m.active.snapshot(m.deviceID, reason)
	m.active = nil
	return &s
}

// snapshot computes the derived metrics for the session as recorded so
// far.
func (s *activeSession) snapshot(deviceID, reason string) Session {
	out := Session{
		ID:            s.id,
		DeviceID:      deviceID,
		StartNs:       s.startNs,
		EndNs:         s.lastFrameNs,
		Frames:        s.frames,
		AlignedFrames: s.alignedFrames,
		Transitions:   s.transitions,
		EndReason:     reason,
	}
	if s.frames > 0 {
		out.AlignedRatio = float64(s.alignedFrames) / float64(s.frames)
	}
	out.P50NeckDeg, out.P85NeckDeg, out.P95NeckDeg = percentiles(s.neckSamples)
	out.P50NoseOffsetPx, out.P85NoseOffsetPx, out.P95NoseOffsetPx = percentiles(s.noseSamples)
	return out
}

// percentiles returns the empirical p50/p85/p95 of the samples, zeros
// for an empty set.
func percentiles(samples []float64) (p50, p85, p95 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p85 = stat.Quantile(0.85, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return p50, p85, p95
}
