package pose

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxFrameBytes caps the size of a single wire frame. One frame with 17
// keypoints is well under 2 KiB; anything near the cap is garbage input.
const MaxFrameBytes = 64 * 1024

// ErrFrameTooLarge is returned for wire payloads over MaxFrameBytes.
var ErrFrameTooLarge = fmt.Errorf("pose: frame exceeds %d bytes", MaxFrameBytes)

// ParseFrame decodes one wire frame: a single line of JSON, one datagram per
// frame over UDP or one line per frame over serial. Validation covers only
// what downstream stages rely on; unknown keypoint names pass through.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("pose: frame is not a JSON object")
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("pose: failed to unmarshal frame: %w", err)
	}

	if !f.Facing.Valid() {
		return nil, fmt.Errorf("pose: invalid facing %q: expected %q or %q", f.Facing, FacingFront, FacingBack)
	}
	if f.TensorWidth <= 0 || f.TensorHeight <= 0 {
		return nil, fmt.Errorf("pose: invalid tensor dimensions %dx%d", f.TensorWidth, f.TensorHeight)
	}
	for i := range f.Poses {
		for j := range f.Poses[i].Keypoints {
			kp := f.Poses[i].Keypoints[j]
			if kp.Name == "" {
				return nil, fmt.Errorf("pose: keypoint %d of pose %d has no name", j, i)
			}
			if kp.Score < 0 || kp.Score > 1 {
				return nil, fmt.Errorf("pose: keypoint %q score %v outside [0,1]", kp.Name, kp.Score)
			}
		}
	}
	return &f, nil
}

// MarshalWire encodes the frame as a single JSON line without a trailing
// newline. The inverse of ParseFrame; used by the replayer and tools.
func (f *Frame) MarshalWire() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("pose: failed to marshal frame: %w", err)
	}
	return data, nil
}
