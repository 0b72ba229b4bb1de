// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers and canned pose fixtures to
// reduce duplication across test files.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sitwell-data/posture.report/internal/pose"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// standingLayout places all 17 keypoints as an upright figure in a 192x192
// tensor space. The figure classifies as aligned from both camera facings:
// the ear midpoint sits 2px from the nose, and the hip-shoulder and
// shoulder-ear segments are within 4 degrees of vertical.
var standingLayout = map[string][2]float64{
	pose.Nose:          {96, 40},
	pose.LeftEye:       {90, 36},
	pose.RightEye:      {102, 36},
	pose.LeftEar:       {80, 38},
	pose.RightEar:      {112, 38},
	pose.LeftShoulder:  {78, 70},
	pose.RightShoulder: {114, 70},
	pose.LeftElbow:     {74, 98},
	pose.RightElbow:    {118, 98},
	pose.LeftWrist:     {72, 124},
	pose.RightWrist:    {120, 124},
	pose.LeftHip:       {82, 130},
	pose.RightHip:      {110, 130},
	pose.LeftKnee:      {82, 160},
	pose.RightKnee:     {110, 160},
	pose.LeftAnkle:     {82, 186},
	pose.RightAnkle:    {110, 186},
}

// StandingPose returns a full-body pose that classifies as aligned from both
// camera facings. All keypoints carry the given confidence score.
func StandingPose(score float64) *pose.Pose {
	p := &pose.Pose{Score: score}
	for _, name := range pose.KeypointNames {
		xy := standingLayout[name]
		p.Keypoints = append(p.Keypoints, pose.Keypoint{Name: name, X: xy[0], Y: xy[1], Score: score})
	}
	return p
}

// SlouchedPose returns a full-body pose that classifies as not aligned from
// both camera facings: the nose drops forward of the ear midpoint and the left
// ear leans ahead of the shoulder line.
func SlouchedPose(score float64) *pose.Pose {
	p := StandingPose(score)
	for i := range p.Keypoints {
		switch p.Keypoints[i].Name {
		case pose.Nose:
			p.Keypoints[i].X, p.Keypoints[i].Y = 96, 62
		case pose.LeftEar:
			p.Keypoints[i].X, p.Keypoints[i].Y = 100, 48
		}
	}
	return p
}

// NewFrame wraps a pose in a wire frame with the given facing and sequence.
func NewFrame(facing pose.Facing, seq uint64, p *pose.Pose) *pose.Frame {
	f := &pose.Frame{
		TimestampNanos: int64(seq) * int64(33e6),
		Sequence:       seq,
		DeviceID:       "test-device",
		Facing:         facing,
		TensorWidth:    192,
		TensorHeight:   192,
	}
	if p != nil {
		f.Poses = []pose.Pose{*p}
	}
	return f
}

// WireLine marshals a frame to its single-line wire form.
func WireLine(t *testing.T, f *pose.Frame) []byte {
	t.Helper()
	b, err := f.MarshalWire()
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return b
}
