package session

import (
	"sync"
	"time"

	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/posture"
)

// Rollup aggregates verdicts over one fixed time window. Rows are much
// cheaper to chart and query than per-frame verdicts.
type Rollup struct {
	WindowStartNs int64   `json:"window_start_ns"`
	WindowEndNs   int64   `json:"window_end_ns"`
	Frames        int64   `json:"frames"`
	AlignedFrames int64   `json:"aligned_frames"`
	AlignedRatio  float64 `json:"aligned_ratio"`

	AvgNeckDeg      float64 `json:"avg_neck_deg"`
	MaxNeckDeg      int     `json:"max_neck_deg"`
	AvgNoseOffsetPx float64 `json:"avg_nose_offset_px"`
	MaxNoseOffsetPx int     `json:"max_nose_offset_px"`
}

// RollupCollector buckets verdicts into fixed windows aligned to the
// period, emitting each completed window to its sink.
type RollupCollector struct {
	mu     sync.Mutex
	period int64 // window length in nanoseconds
	sink   func(*Rollup)

	cur     *Rollup
	neckSum float64
	neckN   int64
	noseSum float64
	noseN   int64
}

// NewRollupCollector creates a collector with the given window period. A
// nil sink discards rollups; a non-positive period defaults to one
// minute.
func NewRollupCollector(period time.Duration, sink func(*Rollup)) *RollupCollector {
	if period <= 0 {
		period = time.Minute
	}
	if sink == nil {
		sink = func(*Rollup) {}
	}
	return &RollupCollector{
		period: period.Nanoseconds(),
		sink:   sink,
	}
}

// Record folds one classified frame into the current window, emitting
// the previous window when the frame crosses a boundary.
func (rc *RollupCollector) Record(v posture.Verdict, facing pose.Facing, tsNanos int64) {
	windowStart := tsNanos - mod(tsNanos, rc.period)

	rc.mu.Lock()

	var done *Rollup
	if rc.cur != nil && rc.cur.WindowStartNs != windowStart {
		done = rc.finalize()
	}
	if rc.cur == nil {
		rc.cur = &Rollup{
			WindowStartNs: windowStart,
			WindowEndNs:   windowStart + rc.period,
		}
	}

	rc.cur.Frames++
	if v.Valid {
		if v.Aligned {
			rc.cur.AlignedFrames++
		}
		switch facing {
		case pose.FacingBack:
			rc.neckSum += float64(v.NeckAngleDeg)
			rc.neckN++
			if v.NeckAngleDeg > rc.cur.MaxNeckDeg {
				rc.cur.MaxNeckDeg = v.NeckAngleDeg
			}
		case pose.FacingFront:
			rc.noseSum += float64(v.NoseOffsetPx)
			rc.noseN++
			if v.NoseOffsetPx > rc.cur.MaxNoseOffsetPx {
				rc.cur.MaxNoseOffsetPx = v.NoseOffsetPx
			}
		}
	}

	rc.mu.Unlock()

	if done != nil {
		rc.sink(done)
	}
}

// Flush emits the in-progress window, if any. Call on shutdown so the
// tail of the day is not lost.
func (rc *RollupCollector) Flush() {
	rc.mu.Lock()
	done := rc.finalize()
	rc.mu.Unlock()

	if done != nil {
		rc.sink(done)
	}
}

// finalize computes derived fields and clears the current window.
// Callers hold the lock and deliver to the sink after releasing it.
func (rc *RollupCollector) finalize() *Rollup {
	if rc.cur == nil {
		return nil
	}
	r := rc.cur
	if r.Frames > 0 {
		r.AlignedRatio = float64(r.AlignedFrames) / float64(r.Frames)
	}
	if rc.neckN > 0 {
		r.AvgNeckDeg = rc.neckSum / float64(rc.neckN)
	}
	if rc.noseN > 0 {
		r.AvgNoseOffsetPx = rc.noseSum / float64(rc.noseN)
	}

	rc.cur = nil
	rc.neckSum, rc.neckN = 0, 0
	rc.noseSum, rc.noseN = 0, 0
	return r
}

// mod is a floored modulo so pre-epoch timestamps still bucket onto
// window boundaries.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
