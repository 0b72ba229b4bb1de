package pose

import "testing"

func TestFacingValid(t *testing.T) {
	cases := []struct {
		facing Facing
		want   bool
	}{
		{FacingFront, true},
		{FacingBack, true},
		{Facing(""), false},
		{Facing("selfie"), false},
		{Facing("FRONT"), false},
	}
	for _, tc := range cases {
		if got := tc.facing.Valid(); got != tc.want {
			t.Errorf("Facing(%q).Valid() = %v, want %v", tc.facing, got, tc.want)
		}
	}
}

func TestPoseKeypointLookup(t *testing.T) {
	p := Pose{
		Score: 0.9,
		Keypoints: []Keypoint{
			{Name: Nose, X: 10, Y: 20, Score: 0.95},
			{Name: LeftEar, X: 5, Y: 18, Score: 0.8},
		},
	}

	kp, ok := p.Keypoint(Nose)
	if !ok {
		t.Fatal("expected nose keypoint to be present")
	}
	if kp.X != 10 || kp.Y != 20 {
		t.Errorf("nose at (%v,%v), want (10,20)", kp.X, kp.Y)
	}

	if _, ok := p.Keypoint(RightEar); ok {
		t.Error("right_ear should not be present")
	}
}

func TestPrimaryPose(t *testing.T) {
	t.Run("empty frame has no primary pose", func(t *testing.T) {
		f := Frame{}
		if _, ok := f.PrimaryPose(); ok {
			t.Error("expected no primary pose for empty frame")
		}
	})

	t.Run("highest score wins", func(t *testing.T) {
		f := Frame{Poses: []Pose{
			{Score: 0.4},
			{Score: 0.9},
			{Score: 0.7},
		}}
		p, ok := f.PrimaryPose()
		if !ok {
			t.Fatal("expected a primary pose")
		}
		if p.Score != 0.9 {
			t.Errorf("primary pose score = %v, want 0.9", p.Score)
		}
	})

	t.Run("single pose", func(t *testing.T) {
		f := Frame{Poses: []Pose{{Score: 0.5}}}
		p, ok := f.PrimaryPose()
		if !ok || p.Score != 0.5 {
			t.Errorf("PrimaryPose() = (%v, %v), want the only pose", p, ok)
		}
	})
}

func TestSkeletonEndpointsAreKnownNames(t *testing.T) {
	known := map[string]bool{
		Nose: true, LeftEye: true, RightEye: true, LeftEar: true, RightEar: true,
		LeftShoulder: true, RightShoulder: true, LeftElbow: true, RightElbow: true,
		LeftWrist: true, RightWrist: true, LeftHip: true, RightHip: true,
		LeftKnee: true, RightKnee: true, LeftAnkle: true, RightAnkle: true,
	}
	for i, limb := range Skeleton {
		if !known[limb[0]] || !known[limb[1]] {
			t.Errorf("skeleton limb %d references unknown keypoint: %v", i, limb)
		}
		if limb[0] == limb[1] {
			t.Errorf("skeleton limb %d is degenerate: %v", i, limb)
		}
	}
}
