package testutil

import (
	"errors"
	"net/http"
	"testing"

	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/posture"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertStatusCode_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("status mismatch", func(t *testing.T) {
		AssertStatusCode(t, http.StatusOK, http.StatusBadRequest)
	})
	if ok {
		t.Fatal("expected subtest to fail on mismatched status code")
	}
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
}

func TestAssertNoError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("unexpected error", func(t *testing.T) {
		AssertNoError(t, errors.New("boom"))
	})
	if ok {
		t.Fatal("expected subtest to fail when error is non-nil")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
}

func TestAssertError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("missing expected error", func(t *testing.T) {
		AssertError(t, nil)
	})
	if ok {
		t.Fatal("expected subtest to fail when error is nil")
	}
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodPost, "/api/verdict")
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if req.URL.Path != "/api/verdict" {
		t.Errorf("path = %s, want /api/verdict", req.URL.Path)
	}
}

func TestNewTestRecorder(t *testing.T) {
	t.Parallel()

	rec := NewTestRecorder()
	if rec.Code != http.StatusOK {
		t.Errorf("initial Code = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("initial body length = %d, want 0", rec.Body.Len())
	}
}

func TestStandingPose_AlignedBothFacings(t *testing.T) {
	t.Parallel()

	for _, facing := range []pose.Facing{pose.FacingFront, pose.FacingBack} {
		c := posture.NewClassifier(posture.DefaultParams())
		c.ClassifyAndUpdate(StandingPose(0.9), facing, 1, 100)
		v := c.Snapshot()
		if !v.Valid || !v.Aligned {
			t.Errorf("facing %s: standing pose should classify aligned, got %+v", facing, v)
		}
	}
}

func TestSlouchedPose_NotAlignedBothFacings(t *testing.T) {
	t.Parallel()

	for _, facing := range []pose.Facing{pose.FacingFront, pose.FacingBack} {
		c := posture.NewClassifier(posture.DefaultParams())
		c.ClassifyAndUpdate(SlouchedPose(0.9), facing, 1, 100)
		v := c.Snapshot()
		if !v.Valid || v.Aligned {
			t.Errorf("facing %s: slouched pose should classify not aligned, got %+v", facing, v)
		}
	}
}

func TestStandingPose_CoversAllKeypoints(t *testing.T) {
	t.Parallel()

	p := StandingPose(0.8)
	if len(p.Keypoints) != len(pose.KeypointNames) {
		t.Fatalf("got %d keypoints, want %d", len(p.Keypoints), len(pose.KeypointNames))
	}
	for _, name := range pose.KeypointNames {
		if _, ok := p.Keypoint(name); !ok {
			t.Errorf("missing keypoint %s", name)
		}
	}
}

func TestNewFrame_WireRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFrame(pose.FacingFront, 7, StandingPose(0.9))
	line := WireLine(t, f)

	parsed, err := pose.ParseFrame(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Sequence != 7 || parsed.Facing != pose.FacingFront {
		t.Errorf("round trip lost metadata: %+v", parsed)
	}
	if len(parsed.Poses) != 1 {
		t.Fatalf("got %d poses, want 1", len(parsed.Poses))
	}
}
