package posture

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sitwell-data/posture.report/internal/timeutil"
)

// FrameStats tracks frame ingest statistics with thread-safe operations.
// Counters accumulate until GetAndReset; the FPS gauge is a rolling
// one-second window updated as frames arrive.
type FrameStats struct {
	mu            sync.Mutex
	clock         timeutil.Clock
	frameCount    int64
	poseCount     int64
	keypointCount int64
	errorCount    int64
	droppedCount  int64
	lastReset     time.Time

	windowStart  time.Time
	windowFrames int64
	currentFPS   int64
}

// FrameStatsSnapshot is the result of GetAndReset.
type FrameStatsSnapshot struct {
	Frames    int64
	Poses     int64
	Keypoints int64
	Errors    int64
	Dropped   int64
	Duration  time.Duration
}

// NewFrameStats creates a new FrameStats instance.
func NewFrameStats() *FrameStats {
	return NewFrameStatsWithClock(timeutil.RealClock{})
}

// NewFrameStatsWithClock creates a FrameStats driven by the given clock.
func NewFrameStatsWithClock(clock timeutil.Clock) *FrameStats {
	now := clock.Now()
	return &FrameStats{
		clock:       clock,
		lastReset:   now,
		windowStart: now,
	}
}

// AddFrame records one parsed frame with its pose and keypoint counts, and
// advances the rolling FPS window.
func (fs *FrameStats) AddFrame(poses, keypoints int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frameCount++
	fs.poseCount += int64(poses)
	fs.keypointCount += int64(keypoints)

	now := fs.clock.Now()
	if now.Sub(fs.windowStart) >= time.Second {
		fs.currentFPS = fs.windowFrames
		fs.windowFrames = 0
		fs.windowStart = now
	}
	fs.windowFrames++
}

// AddError increments the parse error count.
func (fs *FrameStats) AddError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.errorCount++
}

// AddDropped increments the dropped frame count.
func (fs *FrameStats) AddDropped() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.droppedCount++
}

// CurrentFPS returns the frame count of the most recent completed
// one-second window. It reads zero until the first window closes.
func (fs *FrameStats) CurrentFPS() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.currentFPS
}

// Snapshot returns accumulated counters without resetting them. Readers
// that must not disturb the periodic LogStats cadence use this.
func (fs *FrameStats) Snapshot() FrameStatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return FrameStatsSnapshot{
		Frames:    fs.frameCount,
		Poses:     fs.poseCount,
		Keypoints: fs.keypointCount,
		Errors:    fs.errorCount,
		Dropped:   fs.droppedCount,
		Duration:  fs.clock.Now().Sub(fs.lastReset),
	}
}

// GetAndReset returns accumulated counters and resets them. The FPS window
// is left alone; it has its own cadence.
func (fs *FrameStats) GetAndReset() FrameStatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.clock.Now()
	snap := FrameStatsSnapshot{
		Frames:    fs.frameCount,
		Poses:     fs.poseCount,
		Keypoints: fs.keypointCount,
		Errors:    fs.errorCount,
		Dropped:   fs.droppedCount,
		Duration:  now.Sub(fs.lastReset),
	}

	fs.frameCount = 0
	fs.poseCount = 0
	fs.keypointCount = 0
	fs.errorCount = 0
	fs.droppedCount = 0
	fs.lastReset = now

	return snap
}

// LogStats logs a rate summary and resets the counters. Quiet intervals
// (no frames, no errors) log nothing.
func (fs *FrameStats) LogStats() {
	snap := fs.GetAndReset()
	if snap.Frames == 0 && snap.Errors == 0 && snap.Dropped == 0 {
		return
	}

	framesPerSec := float64(snap.Frames) / snap.Duration.Seconds()
	logMsg := fmt.Sprintf("Pose stats (/sec): %.1f frames, %s keypoints",
		framesPerSec, FormatWithCommas(int64(float64(snap.Keypoints)/snap.Duration.Seconds())))
	if snap.Errors > 0 {
		logMsg += fmt.Sprintf(", %d parse errors", snap.Errors)
	}
	if snap.Dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped on forward", snap.Dropped)
	}

	log.Print(logMsg)
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
