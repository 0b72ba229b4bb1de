package posture

import (
	"errors"
	"math"
)

// ErrInclinationUndefined reports input points for which the inclination
// formula has no defined value: a reference point on the top tensor edge
// (y1 == 0 divides by zero), coincident points, or rounding that pushes the
// acos argument outside [-1, 1]. Callers treat it like a missing keypoint
// and leave the verdict unchanged.
var ErrInclinationUndefined = errors.New("posture: inclination undefined for input points")

// FindInclination measures how far the segment from (x1,y1) to (x2,y2)
// leans away from the vertical through (x1,y1), in whole degrees.
//
// The arithmetic is inherited from the original classifier and must stay
// exactly as written:
//
//	acos( (y2-y1)·(-y1) / (hypot(x2-x1, y2-y1) · y1) )
//
// It is not a general angle-between-three-points computation, and the
// separate (-y1) and y1 factors are kept rather than cancelled so the
// floating-point behaviour matches the source.
func FindInclination(x1, y1, x2, y2 float64) (int, error) {
	if y1 == 0 {
		return 0, ErrInclinationUndefined
	}
	hyp := math.Hypot(x2-x1, y2-y1)
	theta := math.Acos(((y2 - y1) * (-y1)) / (hyp * y1))
	if math.IsNaN(theta) {
		return 0, ErrInclinationUndefined
	}
	return int(math.Floor(theta * 180 / math.Pi)), nil
}

// flooredDistance returns the Euclidean distance between two points as a
// whole number of pixels.
func flooredDistance(x1, y1, x2, y2 float64) int {
	return int(math.Floor(math.Hypot(x2-x1, y2-y1)))
}
