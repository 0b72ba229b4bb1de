// Package overlay assembles per-frame render bundles for live viewers.
// A bundle carries the detected keypoints, the skeleton segments that
// have both endpoints detected, the current verdict, and the feed FPS,
// so a renderer needs no classifier knowledge of its own.
package overlay

import (
	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/posture"
)

// Point is one rendered keypoint in tensor space.
type Point struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Limb is one skeleton segment between two detected keypoints.
type Limb struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Bundle is the per-frame payload pushed over the live WebSocket.
type Bundle struct {
	FrameSeq uint64      `json:"frame_seq"`
	TsNs     int64       `json:"ts_ns"`
	DeviceID string      `json:"device_id,omitempty"`
	Facing   pose.Facing `json:"facing"`
	TensorW  int         `json:"tensor_w"`
	TensorH  int         `json:"tensor_h"`

	// Space names the coordinate space of Keypoints. Empty means tensor
	// space; subscribers that request a viewport mapping get it set to
	// the space they asked for.
	Space string `json:"space,omitempty"`

	Keypoints []Point `json:"keypoints"`
	Limbs     []Limb  `json:"limbs"`

	Verdict posture.Verdict `json:"verdict"`
	FPS     float64         `json:"fps"`
}

// BuildBundle assembles the bundle for one frame. p is the frame's
// primary pose and may be nil when no person was detected; the verdict
// still rides along so viewers keep showing the held state. Keypoints at
// or below minScore are omitted, matching the classifier's detection
// gate.
func BuildBundle(f *pose.Frame, p *pose.Pose, v posture.Verdict, fps float64, minScore float64) *Bundle {
	b := &Bundle{
		FrameSeq: f.Sequence,
		TsNs:     f.TimestampNanos,
		DeviceID: f.DeviceID,
		Facing:   f.Facing,
		TensorW:  f.TensorWidth,
		TensorH:  f.TensorHeight,
		Verdict:  v,
		FPS:      fps,
	}
	if p == nil {
		return b
	}

	detected := make(map[string]bool, len(p.Keypoints))
	for _, kp := range p.Keypoints {
		if kp.Score <= minScore {
			continue
		}
		detected[kp.Name] = true
		b.Keypoints = append(b.Keypoints, Point{
			Name:  kp.Name,
			X:     kp.X,
			Y:     kp.Y,
			Score: kp.Score,
		})
	}

	for _, seg := range pose.Skeleton {
		if detected[seg[0]] && detected[seg[1]] {
			b.Limbs = append(b.Limbs, Limb{From: seg[0], To: seg[1]})
		}
	}

	return b
}
