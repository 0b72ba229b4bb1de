package posture

import "testing"

func TestFindInclination_HandComputed(t *testing.T) {
	// (3,4) -> (7,1): numerator (1-4)*(-4) = 12, hypot = 5, denominator
	// 5*4 = 20, acos(0.6) = 53.13 degrees, floored to 53.
	deg, err := FindInclination(3, 4, 7, 1)
	if err != nil {
		t.Fatalf("FindInclination failed: %v", err)
	}
	if deg != 53 {
		t.Errorf("FindInclination(3,4,7,1) = %d, want 53", deg)
	}
}

func TestFindInclination_Deterministic(t *testing.T) {
	first, err := FindInclination(12.5, 87.25, 43.75, 19.5)
	if err != nil {
		t.Fatalf("FindInclination failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := FindInclination(12.5, 87.25, 43.75, 19.5)
		if err != nil {
			t.Fatalf("FindInclination failed on repeat %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("FindInclination not deterministic: %d then %d", first, again)
		}
	}
}

func TestFindInclination_Vertical(t *testing.T) {
	// Straight up from (0,10) to (0,0): ratio 1, angle 0.
	deg, err := FindInclination(0, 10, 0, 0)
	if err != nil {
		t.Fatalf("FindInclination failed: %v", err)
	}
	if deg != 0 {
		t.Errorf("vertical segment = %d degrees, want 0", deg)
	}

	// Straight down from (0,10) to (0,20): ratio -1, angle 180.
	deg, err = FindInclination(0, 10, 0, 20)
	if err != nil {
		t.Fatalf("FindInclination failed: %v", err)
	}
	if deg != 180 {
		t.Errorf("inverted segment = %d degrees, want 180", deg)
	}
}

func TestFindInclination_SensitiveToSignOfY1(t *testing.T) {
	// The same downward segment flips meaning when y1 is negative: the
	// formula divides by y1 rather than |y1|, so (0,-10)->(0,-20) reads as
	// 0 degrees where (0,10)->(0,20) reads as 180. Inherited behaviour.
	up, err := FindInclination(0, 10, 0, 20)
	if err != nil {
		t.Fatalf("FindInclination failed: %v", err)
	}
	down, err := FindInclination(0, -10, 0, -20)
	if err != nil {
		t.Fatalf("FindInclination failed: %v", err)
	}
	if up != 180 || down != 0 {
		t.Errorf("sign sensitivity broken: positive y1 = %d (want 180), negative y1 = %d (want 0)", up, down)
	}
}

func TestFindInclination_UndefinedInputs(t *testing.T) {
	cases := []struct {
		name           string
		x1, y1, x2, y2 float64
	}{
		{"y1 zero", 5, 0, 10, 10},
		{"coincident points", 5, 5, 5, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FindInclination(tc.x1, tc.y1, tc.x2, tc.y2); err != ErrInclinationUndefined {
				t.Errorf("FindInclination(%v,%v,%v,%v) err = %v, want ErrInclinationUndefined",
					tc.x1, tc.y1, tc.x2, tc.y2, err)
			}
		})
	}
}

func TestFlooredDistance(t *testing.T) {
	cases := []struct {
		x1, y1, x2, y2 float64
		want           int
	}{
		{0, 0, 3, 4, 5},
		{5, 0, 5, 3, 3},
		{0, 0, 1, 1, 1}, // sqrt(2) floors to 1
		{2, 2, 2, 2, 0},
	}
	for _, tc := range cases {
		if got := flooredDistance(tc.x1, tc.y1, tc.x2, tc.y2); got != tc.want {
			t.Errorf("flooredDistance(%v,%v,%v,%v) = %d, want %d",
				tc.x1, tc.y1, tc.x2, tc.y2, got, tc.want)
		}
	}
}
