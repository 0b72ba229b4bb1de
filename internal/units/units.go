// Package units provides shared constants and validation for keypoint
// coordinate spaces.
package units

// Coordinate space constants. Keypoints arrive and are stored in tensor
// space (the estimator's output grid); display space is a caller-supplied
// viewport, typically the phone screen the overlay is drawn on.
const (
	Tensor  = "tensor"
	Display = "display"
)

// ValidSpaces contains all valid coordinate space values.
var ValidSpaces = []string{Tensor, Display}

// IsValid checks if the given space is in the list of valid spaces.
func IsValid(space string) bool {
	for _, validSpace := range ValidSpaces {
		if space == validSpace {
			return true
		}
	}
	return false
}

// GetValidSpacesString returns a comma-separated string of valid spaces for
// error messages.
func GetValidSpacesString() string {
	return "tensor, display"
}

// Viewport is the display target for coordinate mapping.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MapPoint converts a tensor-space point into display space by scaling each
// axis independently. Degenerate tensor dimensions return the point
// unchanged rather than dividing by zero; frame validation upstream makes
// that unreachable in practice.
func MapPoint(x, y float64, tensorW, tensorH int, vp Viewport) (float64, float64) {
	if tensorW <= 0 || tensorH <= 0 {
		return x, y
	}
	return x * float64(vp.Width) / float64(tensorW),
		y * float64(vp.Height) / float64(tensorH)
}
