package pipeline

import (
	"reflect"
	"sync/atomic"
	"time"

	"github.com/sitwell-data/posture.report/internal/overlay"
	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/posture"
	"github.com/sitwell-data/posture.report/internal/session"
	"github.com/sitwell-data/posture.report/internal/timeutil"
)

// ClipRecorder persists parsed frames to a clip on disk. Declared as an
// interface so callers can wire the pipeline without the recorder package.
type ClipRecorder interface {
	Record(frame *pose.Frame) error
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
// This handles the Go interface nil pitfall where interface{} != nil but the
// underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// diagSummaryInterval is how many fully processed frames pass between
// periodic diag-stream summaries.
const diagSummaryInterval = 300

// PipelineConfig holds dependencies for the frame processing callback.
type PipelineConfig struct {
	Classifier *posture.Classifier
	Stats      *posture.FrameStats
	Sessions   *session.Manager         // Optional: session accounting
	Rollups    *session.RollupCollector // Optional: periodic aggregates
	Recorder   ClipRecorder             // Optional: tap the live feed into a clip

	// PublishFunc, when non-nil, receives the overlay bundle built for
	// every fully processed frame. Frames with no detected person still
	// publish a bundle carrying the frame metadata and the held verdict
	// so consumers keep rendering. The callback must not block.
	PublishFunc func(*overlay.Bundle)

	// MaxFrameRate caps the rate at which frames are fully processed.
	// When frames arrive faster than this rate (e.g. during clip replay
	// catch-up), excess frames are parsed, counted, and recorded, but
	// skip the classify/publish path, so the verdict holds. Zero means
	// no limit (process every frame). Typical value: 30.
	MaxFrameRate float64

	// Clock drives the frame-rate throttle. Nil means the real clock.
	Clock timeutil.Clock
}

// NewFrameCallback creates a feed callback that processes raw wire lines
// through the full posture pipeline: parse, ingest stats, clip tap,
// primary pose selection, classification, session accounting, and
// overlay publish.
//
// Stage failures never stop the pipeline. Parse errors are counted and
// the line dropped; a frame with no usable person leaves the verdict
// held; a failing recorder only logs.
func (cfg *PipelineConfig) NewFrameCallback() func(line []byte) {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	// Frame-rate throttle state. Parse, stats, and the clip tap always
	// run so counters and recordings stay complete; only the
	// classify/publish path is skipped when frames arrive faster than
	// MaxFrameRate. This keeps replay catch-up bursts from pinning the
	// CPU and flooding live subscribers.
	var lastProcessedTime time.Time
	var minFrameInterval time.Duration
	if cfg.MaxFrameRate > 0 {
		minFrameInterval = time.Duration(float64(time.Second) / cfg.MaxFrameRate)
	}
	var throttledFrames atomic.Uint64
	var parseFailures atomic.Uint64

	// Remaining state is only touched by the callback, which feeds run
	// synchronously from a single goroutine.
	var processed uint64
	var lastColor string

	return func(line []byte) {
		frame, err := pose.ParseFrame(line)
		if err != nil {
			if cfg.Stats != nil {
				cfg.Stats.AddError()
			}
			count := parseFailures.Add(1)
			if count == 1 || count%100 == 0 {
				opsf("[Feed] Failed to parse frame line (%d so far): %v", count, err)
			}
			return
		}

		keypoints := 0
		for i := range frame.Poses {
			keypoints += len(frame.Poses[i].Keypoints)
		}
		if cfg.Stats != nil {
			cfg.Stats.AddFrame(len(frame.Poses), keypoints)
		}

		tracef("[Feed] Frame seq=%d facing=%s poses=%d keypoints=%d",
			frame.Sequence, frame.Facing, len(frame.Poses), keypoints)

		// Tap the feed into a clip before any throttling so recordings
		// stay byte-complete.
		if !isNilInterface(cfg.Recorder) {
			if err := cfg.Recorder.Record(frame); err != nil {
				opsf("[Clip] Failed to record frame seq=%d: %v", frame.Sequence, err)
			}
		}

		// Frame-rate throttle: skip the downstream path when frames
		// arrive faster than MaxFrameRate. The held verdict carries
		// through, same as a frame with no usable person.
		if minFrameInterval > 0 {
			now := clock.Now()
			if !lastProcessedTime.IsZero() && now.Sub(lastProcessedTime) < minFrameInterval {
				if cfg.Stats != nil {
					cfg.Stats.AddDropped()
				}
				count := throttledFrames.Add(1)
				if count%50 == 0 {
					diagf("[Pipeline] Throttled %d frames (max %.0f fps)", count, cfg.MaxFrameRate)
				}
				return
			}
			lastProcessedTime = now
		}

		if cfg.Classifier == nil {
			return
		}

		primary, hasPose := frame.PrimaryPose()
		verdict := cfg.Classifier.ClassifyAndUpdate(primary, frame.Facing, frame.Sequence, frame.TimestampNanos)

		if hasPose {
			if cfg.Sessions != nil {
				cfg.Sessions.RecordVerdict(verdict, frame.Facing, frame.TimestampNanos)
			}
			if cfg.Rollups != nil {
				cfg.Rollups.Record(verdict, frame.Facing, frame.TimestampNanos)
			}
		} else {
			// No person in frame. The previous verdict stands and the
			// session manager sees nothing, so an empty chair does not
			// keep a session alive.
			tracef("[Posture] No pose in frame seq=%d, verdict held", frame.Sequence)
		}

		if verdict.Valid && verdict.Color != lastColor {
			diagf("[Posture] Verdict changed to %s (seq=%d facing=%s)",
				verdict.Color, frame.Sequence, frame.Facing)
			lastColor = verdict.Color
		}

		var fps float64
		if cfg.Stats != nil {
			fps = float64(cfg.Stats.CurrentFPS())
		}

		if cfg.PublishFunc != nil {
			minScore := cfg.Classifier.Params().MinKeypointScore
			cfg.PublishFunc(overlay.BuildBundle(frame, primary, verdict, fps, minScore))
		}

		processed++
		if processed%diagSummaryInterval == 0 {
			color := lastColor
			if color == "" {
				color = "none"
			}
			diagf("[Pipeline] %d frames processed, fps=%.0f, color=%s", processed, fps, color)
		}
	}
}
