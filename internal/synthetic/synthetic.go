// Package synthetic generates plausible pose-frame streams without an
// estimator device. A seeded random walk jitters an upright figure that
// periodically drifts into a slouch and recovers, so long streams carry
// both verdict colours in known phases. gen-poselog uses it to produce
// clips and dev-mode fixtures.
package synthetic

import (
	"math"
	"math/rand"
	"time"

	"github.com/sitwell-data/posture.report/internal/pose"
)

const (
	tensorSize = 192

	// slouchRampStep is how far the slouch factor moves toward its
	// phase target per frame, so a phase change plays out over 50
	// frames instead of snapping.
	slouchRampStep = 0.02

	// driftStep and driftMax bound the per-keypoint random walk. The
	// cap keeps an upright figure inside the aligned thresholds, so
	// the classification phase depends only on the slouch factor.
	driftStep = 0.35
	driftMax  = 1.0

	// tsJitterNs is the maximum per-frame deviation from the nominal
	// frame interval.
	tsJitterNs = 2e6
)

// uprightLayout places an upright figure in the tensor. The ear midpoint
// sits 2px from the nose and the hip-shoulder and shoulder-ear segments
// are within 4 degrees of vertical, leaving the random walk room before
// any threshold.
var uprightLayout = map[string][2]float64{
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

// slouchOffsets is the displacement each keypoint picks up at full
// slouch: the head drops and drifts forward past the shoulder line,
// which fails the front nose-distance rule and the back torso-angle
// rule while the neck angle stays legal.
var slouchOffsets = map[string][2]float64{
	pose.Nose:          {0, 22},
	pose.LeftEye:       {4, 12},
	pose.RightEye:      {4, 12},
	pose.LeftEar:       {20, 10},
	pose.RightEar:      {20, 10},
	pose.LeftShoulder:  {6, 4},
	pose.RightShoulder: {6, 4},
}

// Config holds generator settings. Zero values get defaults.
type Config struct {
	DeviceID string      // stamped on every frame (default "synthetic")
	Facing   pose.Facing // camera facing (default back)
	Seed     int64       // random walk seed
	FPS      float64     // nominal frame cadence (default 30)
	StartNs  int64       // first frame timestamp (default: now)

	UprightFrames int // frames per upright phase (default 300)
	SlouchFrames  int // frames per slouched phase (default 150)

	AwayEvery  int // insert an empty-frame gap after this many posed frames (0 = never)
	AwayFrames int // length of each gap (default 60)
}

// Generator produces a deterministic frame stream for its seed.
type Generator struct {
	cfg      Config
	rng      *rand.Rand
	seq      uint64
	tsNs     int64
	interval int64

	cycle  int     // position inside the upright+slouch cycle
	slouch float64 // 0 upright, 1 fully slouched

	sinceAway int
	awayLeft  int

	drift map[string][2]float64
}

// NewGenerator creates a generator. The same Config produces the same
// frame stream.
func NewGenerator(cfg Config) *Generator {
	if cfg.DeviceID == "" {
		cfg.DeviceID = "synthetic"
	}
	if !cfg.Facing.Valid() {
		cfg.Facing = pose.FacingBack
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.StartNs == 0 {
		cfg.StartNs = time.Now().UnixNano()
	}
	if cfg.UprightFrames <= 0 {
		cfg.UprightFrames = 300
	}
	if cfg.SlouchFrames <= 0 {
		cfg.SlouchFrames = 150
	}
	if cfg.AwayEvery > 0 && cfg.AwayFrames <= 0 {
		cfg.AwayFrames = 60
	}

	return &Generator{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		tsNs:     cfg.StartNs,
		interval: int64(float64(time.Second) / cfg.FPS),
		drift:    make(map[string][2]float64, len(uprightLayout)),
	}
}

// NextFrame produces the next frame in the stream.
func (g *Generator) NextFrame() *pose.Frame {
	g.seq++
	jitter := int64((g.rng.Float64()*2 - 1) * tsJitterNs)
	if g.seq > 1 {
		g.tsNs += g.interval + jitter
	}

	frame := &pose.Frame{
		TimestampNanos: g.tsNs,
		Sequence:       g.seq,
		DeviceID:       g.cfg.DeviceID,
		Facing:         g.cfg.Facing,
		TensorWidth:    tensorSize,
		TensorHeight:   tensorSize,
	}

	// Empty frames model the person stepping away. They advance the
	// clock but freeze the posture cycle so the phases stay aligned to
	// posed-frame counts.
	if g.awayLeft > 0 {
		g.awayLeft--
		return frame
	}
	if g.cfg.AwayEvery > 0 {
		g.sinceAway++
		if g.sinceAway >= g.cfg.AwayEvery {
			g.sinceAway = 0
			g.awayLeft = g.cfg.AwayFrames - 1
			return frame
		}
	}

	target := 0.0
	if g.cycle >= g.cfg.UprightFrames {
		target = 1.0
	}
	g.cycle = (g.cycle + 1) % (g.cfg.UprightFrames + g.cfg.SlouchFrames)
	switch {
	case g.slouch < target:
		g.slouch = math.Min(target, g.slouch+slouchRampStep)
	case g.slouch > target:
		g.slouch = math.Max(target, g.slouch-slouchRampStep)
	}

	p := pose.Pose{Keypoints: make([]pose.Keypoint, 0, len(pose.KeypointNames))}
	for _, name := range pose.KeypointNames {
		base := uprightLayout[name]
		d := g.drift[name]
		d[0] = clamp(d[0]+(g.rng.Float64()*2-1)*driftStep, -driftMax, driftMax)
		d[1] = clamp(d[1]+(g.rng.Float64()*2-1)*driftStep, -driftMax, driftMax)
		g.drift[name] = d

		off := slouchOffsets[name]
		score := 0.82 + g.rng.Float64()*0.15
		if score > p.Score {
			p.Score = score
		}

		p.Keypoints = append(p.Keypoints, pose.Keypoint{
			Name:  name,
			X:     base[0] + d[0] + off[0]*g.slouch,
			Y:     base[1] + d[1] + off[1]*g.slouch,
			Score: score,
		})
	}
	frame.Poses = []pose.Pose{p}
	return frame
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
