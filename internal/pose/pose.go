// Package pose defines the keypoint model shared across posture.report:
// wire parsing, classification, overlay publishing, and clip recording all
// speak these types. Coordinates are in the estimator's output tensor space
// (origin top-left, y growing downward); scores are in [0,1].
package pose

// Keypoint names emitted by the upstream estimator (COCO ordering).
const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// KeypointNames lists all keypoint names in estimator output order.
var KeypointNames = []string{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// Facing identifies which device camera produced a frame.
type Facing string

const (
	FacingFront Facing = "front"
	FacingBack  Facing = "back"
)

// Valid reports whether f is one of the two recognised camera facings.
func (f Facing) Valid() bool {
	return f == FacingFront || f == FacingBack
}

// Keypoint is one named anatomical landmark in tensor space.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Pose is the keypoint set for one detected person in one frame.
type Pose struct {
	Score     float64    `json:"score"`
	Keypoints []Keypoint `json:"keypoints"`
}

// Keypoint returns the named keypoint and whether the estimator reported it
// at all. Confidence gating is the caller's concern.
func (p *Pose) Keypoint(name string) (Keypoint, bool) {
	for i := range p.Keypoints {
		if p.Keypoints[i].Name == name {
			return p.Keypoints[i], true
		}
	}
	return Keypoint{}, false
}

// Frame is one estimator output: zero or more poses plus the capture
// metadata needed to interpret them.
type Frame struct {
	TimestampNanos int64  `json:"ts"`
	Sequence       uint64 `json:"seq"`
	DeviceID       string `json:"device"`
	Facing         Facing `json:"facing"`
	TensorWidth    int    `json:"tensor_w"`
	TensorHeight   int    `json:"tensor_h"`
	Poses          []Pose `json:"poses"`
}

// PrimaryPose returns the highest-scoring pose in the frame, or false when
// no person was detected. The estimator emits at most one pose in practice;
// the max-score rule makes multi-pose frames deterministic anyway.
func (f *Frame) PrimaryPose() (*Pose, bool) {
	if len(f.Poses) == 0 {
		return nil, false
	}
	best := 0
	for i := 1; i < len(f.Poses); i++ {
		if f.Poses[i].Score > f.Poses[best].Score {
			best = i
		}
	}
	return &f.Poses[best], true
}

// Skeleton pairs keypoint names into the limb segments drawn by overlay
// consumers. A segment is rendered only when both endpoints are detected.
var Skeleton = [][2]string{
	{LeftEar, LeftEye},
	{LeftEye, Nose},
	{Nose, RightEye},
	{RightEye, RightEar},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftHip, RightHip},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
}
