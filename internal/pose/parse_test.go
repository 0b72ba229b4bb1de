package pose

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleFrame = `{"ts":1724567890123456789,"seq":42,"device":"pixel-7a","facing":"front","tensor_w":256,"tensor_h":256,"poses":[{"score":0.87,"keypoints":[{"name":"nose","x":128.3,"y":44.1,"score":0.98},{"name":"left_ear","x":110.2,"y":50.5,"score":0.91}]}]}`

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(sampleFrame))
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	want := &Frame{
		TimestampNanos: 1724567890123456789,
		Sequence:       42,
		DeviceID:       "pixel-7a",
		Facing:         FacingFront,
		TensorWidth:    256,
		TensorHeight:   256,
		Poses: []Pose{{
			Score: 0.87,
			Keypoints: []Keypoint{
				{Name: Nose, X: 128.3, Y: 44.1, Score: 0.98},
				{Name: LeftEar, X: 110.2, Y: 50.5, Score: 0.91},
			},
		}},
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFrameTolerance(t *testing.T) {
	t.Run("leading whitespace", func(t *testing.T) {
		if _, err := ParseFrame([]byte("  \n" + sampleFrame + "\n")); err != nil {
			t.Errorf("whitespace-padded frame should parse: %v", err)
		}
	})

	t.Run("empty poses", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"ts":1,"seq":1,"facing":"back","tensor_w":192,"tensor_h":192,"poses":[]}`))
		if err != nil {
			t.Fatalf("empty-pose frame should parse: %v", err)
		}
		if len(f.Poses) != 0 {
			t.Errorf("expected no poses, got %d", len(f.Poses))
		}
	})

	t.Run("unknown keypoint names pass through", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"facing":"front","tensor_w":1,"tensor_h":1,"poses":[{"keypoints":[{"name":"left_antenna","x":1,"y":2,"score":0.5}]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Poses[0].Keypoints[0].Name != "left_antenna" {
			t.Error("unknown keypoint name should be preserved")
		}
	})
}

func TestParseFrameRejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty input", "", "not a JSON object"},
		{"not json", "hello", "not a JSON object"},
		{"truncated", `{"facing":"front"`, "unmarshal"},
		{"bad facing", `{"facing":"sideways","tensor_w":1,"tensor_h":1}`, "invalid facing"},
		{"missing facing", `{"tensor_w":1,"tensor_h":1}`, "invalid facing"},
		{"zero tensor", `{"facing":"front","tensor_w":0,"tensor_h":256}`, "tensor dimensions"},
		{"negative tensor", `{"facing":"front","tensor_w":256,"tensor_h":-1}`, "tensor dimensions"},
		{"unnamed keypoint", `{"facing":"front","tensor_w":1,"tensor_h":1,"poses":[{"keypoints":[{"x":1,"y":2,"score":0.5}]}]}`, "no name"},
		{"score above one", `{"facing":"front","tensor_w":1,"tensor_h":1,"poses":[{"keypoints":[{"name":"nose","x":1,"y":2,"score":1.5}]}]}`, "outside [0,1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tc.in))
			if err == nil {
				t.Fatalf("expected error for %q", tc.in)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParseFrameTooLarge(t *testing.T) {
	big := `{"facing":"front","tensor_w":1,"tensor_h":1,"device":"` + strings.Repeat("x", MaxFrameBytes) + `"}`
	if _, err := ParseFrame([]byte(big)); err != ErrFrameTooLarge {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestMarshalWireRoundTrip(t *testing.T) {
	f, err := ParseFrame([]byte(sampleFrame))
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	data, err := f.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire failed: %v", err)
	}
	if strings.ContainsRune(string(data), '\n') {
		t.Error("wire encoding must be a single line")
	}
	back, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if diff := cmp.Diff(f, back); diff != "" {
		t.Errorf("round trip mismatch (-orig +reparsed):\n%s", diff)
	}
}
