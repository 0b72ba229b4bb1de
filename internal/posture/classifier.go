// Package posture implements the per-frame posture classifier: named 2D
// keypoints in, an aligned/not-aligned verdict with a display colour out.
// The rules and thresholds reproduce the original mobile classifier
// behaviour exactly, including its stale-hold fallback: a branch whose
// inputs are missing never rewrites state, it leaves the previous verdict
// standing.
package posture

import (
	"fmt"
	"sync"

	"github.com/sitwell-data/posture.report/internal/pose"
)

// Colour values rendered by downstream overlay consumers.
const (
	ColorGreen = "green"
	ColorRed   = "red"
)

// Classification thresholds. Params overrides replace them at runtime; the
// comparisons are strict (<, >) to match the source behaviour.
const (
	// DefaultMinKeypointScore gates keypoints: only scores strictly above
	// this take part in any rule.
	DefaultMinKeypointScore = 0.3
	// DefaultFrontNoseDistanceMaxPx is the front-camera rule: ear midpoint
	// to nose under this many pixels means aligned.
	DefaultFrontNoseDistanceMaxPx = 10
	// DefaultNeckAngleMaxDeg / DefaultTorsoAngleMaxDeg are the back-camera
	// rule: both inclinations must be under their limits.
	DefaultNeckAngleMaxDeg  = 40
	DefaultTorsoAngleMaxDeg = 10
	// DefaultShoulderSpanMaxPx drives the independent shoulders check.
	DefaultShoulderSpanMaxPx = 100
)

// Params carries the classifier thresholds. Zero values are invalid; use
// DefaultParams as the baseline and overwrite selectively.
type Params struct {
	MinKeypointScore       float64 `json:"min_keypoint_score"`
	FrontNoseDistanceMaxPx int     `json:"front_nose_distance_max_px"`
	NeckAngleMaxDeg        int     `json:"neck_angle_max_deg"`
	TorsoAngleMaxDeg       int     `json:"torso_angle_max_deg"`
	ShoulderSpanMaxPx      int     `json:"shoulder_span_max_px"`
}

// DefaultParams returns the thresholds of the original classifier.
func DefaultParams() Params {
	return Params{
		MinKeypointScore:       DefaultMinKeypointScore,
		FrontNoseDistanceMaxPx: DefaultFrontNoseDistanceMaxPx,
		NeckAngleMaxDeg:        DefaultNeckAngleMaxDeg,
		TorsoAngleMaxDeg:       DefaultTorsoAngleMaxDeg,
		ShoulderSpanMaxPx:      DefaultShoulderSpanMaxPx,
	}
}

// Validate rejects parameter sets that could never produce a verdict.
func (p Params) Validate() error {
	if p.MinKeypointScore < 0 || p.MinKeypointScore >= 1 {
		return fmt.Errorf("min_keypoint_score %v outside [0,1)", p.MinKeypointScore)
	}
	if p.FrontNoseDistanceMaxPx <= 0 {
		return fmt.Errorf("front_nose_distance_max_px must be positive, got %d", p.FrontNoseDistanceMaxPx)
	}
	if p.NeckAngleMaxDeg <= 0 || p.NeckAngleMaxDeg > 180 {
		return fmt.Errorf("neck_angle_max_deg %d outside (0,180]", p.NeckAngleMaxDeg)
	}
	if p.TorsoAngleMaxDeg <= 0 || p.TorsoAngleMaxDeg > 180 {
		return fmt.Errorf("torso_angle_max_deg %d outside (0,180]", p.TorsoAngleMaxDeg)
	}
	if p.ShoulderSpanMaxPx <= 0 {
		return fmt.Errorf("shoulder_span_max_px must be positive, got %d", p.ShoulderSpanMaxPx)
	}
	return nil
}

// Verdict is the classifier state snapshot. Valid stays false until the
// first complete branch evaluation; after that the verdict only moves
// forward and is never reset. The two aligned signals (colour-driving
// verdict vs shoulders) are tracked independently and never reconciled.
type Verdict struct {
	Valid   bool   `json:"valid"`
	Aligned bool   `json:"aligned"`
	Color   string `json:"color,omitempty"`

	ShouldersValid   bool `json:"shoulders_valid"`
	ShouldersAligned bool `json:"shoulders_aligned"`

	// FrameSeq and UpdatedNanos record the last frame that updated any
	// field of the cell, including a shoulders-only update.
	FrameSeq     uint64 `json:"frame_seq"`
	UpdatedNanos int64  `json:"updated_ns"`

	// Last measured values behind the verdicts, for the API and reports.
	// They follow the same stale-hold rule as the booleans they back.
	NoseOffsetPx   int `json:"nose_offset_px"`
	NeckAngleDeg   int `json:"neck_angle_deg"`
	TorsoAngleDeg  int `json:"torso_angle_deg"`
	ShoulderSpanPx int `json:"shoulder_span_px"`
}

// Classifier holds the rolling posture verdict for one monitored person.
// The frame pipeline feeds it via ClassifyAndUpdate; any number of readers
// may call Snapshot concurrently.
type Classifier struct {
	mu      sync.Mutex
	params  Params
	verdict Verdict
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(params Params) *Classifier {
	return &Classifier{params: params}
}

// Params returns the current thresholds.
func (c *Classifier) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SetParams swaps the thresholds. The change applies from the next frame;
// the held verdict is not recomputed.
func (c *Classifier) SetParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
	return nil
}

// Snapshot returns the current verdict without observing a frame.
func (c *Classifier) Snapshot() Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdict
}

// ClassifyAndUpdate runs the facing-specific rule and the independent
// shoulders check over one pose, updating held state only along branches
// whose keypoints are all detected. A nil pose (no person in frame) changes
// nothing. Returns the verdict after any updates.
func (c *Classifier) ClassifyAndUpdate(p *pose.Pose, facing pose.Facing, seq uint64, tsNanos int64) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p == nil {
		return c.verdict
	}

	updated := false
	switch facing {
	case pose.FacingFront:
		updated = c.classifyFront(p)
	case pose.FacingBack:
		updated = c.classifyBack(p)
	}
	if c.classifyShoulders(p) {
		updated = true
	}
	if updated {
		c.verdict.FrameSeq = seq
		c.verdict.UpdatedNanos = tsNanos
	}
	return c.verdict
}

// detected returns the named keypoint only when the estimator reported it
// with a score strictly above the confidence threshold.
func (c *Classifier) detected(p *pose.Pose, name string) (pose.Keypoint, bool) {
	kp, ok := p.Keypoint(name)
	if !ok || kp.Score <= c.params.MinKeypointScore {
		return pose.Keypoint{}, false
	}
	return kp, true
}

// classifyFront: distance from the ear midpoint to the nose, floored to
// whole pixels, under the limit means aligned.
func (c *Classifier) classifyFront(p *pose.Pose) bool {
	le, ok := c.detected(p, pose.LeftEar)
	if !ok {
		return false
	}
	re, ok := c.detected(p, pose.RightEar)
	if !ok {
		return false
	}
	nose, ok := c.detected(p, pose.Nose)
	if !ok {
		return false
	}

	midX := (le.X + re.X) / 2
	midY := (le.Y + re.Y) / 2
	d := flooredDistance(midX, midY, nose.X, nose.Y)

	c.setVerdict(d < c.params.FrontNoseDistanceMaxPx)
	c.verdict.NoseOffsetPx = d
	return true
}

// classifyBack: the "neck" inclination is measured on the left_hip →
// left_shoulder pair and the "torso" inclination on left_shoulder →
// left_ear. That pairing is inherited from the source; do not swap it to
// match anatomical intuition. All six keypoints must be detected even
// though the right side does not enter the arithmetic.
func (c *Classifier) classifyBack(p *pose.Pose) bool {
	ls, ok := c.detected(p, pose.LeftShoulder)
	if !ok {
		return false
	}
	if _, ok := c.detected(p, pose.RightShoulder); !ok {
		return false
	}
	lear, ok := c.detected(p, pose.LeftEar)
	if !ok {
		return false
	}
	if _, ok := c.detected(p, pose.RightEar); !ok {
		return false
	}
	lhip, ok := c.detected(p, pose.LeftHip)
	if !ok {
		return false
	}
	if _, ok := c.detected(p, pose.RightHip); !ok {
		return false
	}

	neck, err := FindInclination(lhip.X, lhip.Y, ls.X, ls.Y)
	if err != nil {
		return false
	}
	torso, err := FindInclination(ls.X, ls.Y, lear.X, lear.Y)
	if err != nil {
		return false
	}

	c.setVerdict(neck < c.params.NeckAngleMaxDeg && torso < c.params.TorsoAngleMaxDeg)
	c.verdict.NeckAngleDeg = neck
	c.verdict.TorsoAngleDeg = torso
	return true
}

// classifyShoulders runs regardless of facing and feeds the separate
// shoulders-aligned boolean; it never touches the colour.
func (c *Classifier) classifyShoulders(p *pose.Pose) bool {
	ls, ok := c.detected(p, pose.LeftShoulder)
	if !ok {
		return false
	}
	rs, ok := c.detected(p, pose.RightShoulder)
	if !ok {
		return false
	}

	span := flooredDistance(ls.X, ls.Y, rs.X, rs.Y)
	c.verdict.ShouldersValid = true
	c.verdict.ShouldersAligned = span < c.params.ShoulderSpanMaxPx
	c.verdict.ShoulderSpanPx = span
	return true
}

func (c *Classifier) setVerdict(aligned bool) {
	c.verdict.Valid = true
	c.verdict.Aligned = aligned
	if aligned {
		c.verdict.Color = ColorGreen
	} else {
		c.verdict.Color = ColorRed
	}
}
