package types

import (
	"math"
	"testing"
)

func box(cx, cy, w, h float32) Detection {
	return Detection{CenterX: cx, CenterY: cy, Width: w, Height: h}
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Detection
		want float32
		tol  float32
	}{
		{"identical", box(100, 100, 50, 50), box(100, 100, 50, 50), 1.0, 1e-6},
		{"disjoint", box(0, 0, 10, 10), box(100, 100, 10, 10), 0, 0},
		{"edge touching", box(0, 0, 10, 10), box(10, 0, 10, 10), 0, 0},
		{"quarter offset", box(100, 100, 100, 100), box(125, 125, 100, 100), 0.391, 0.01},
		{"zero area a", box(100, 100, 0, 10), box(100, 100, 10, 10), 0, 0},
		{"zero area b", box(100, 100, 10, 10), box(100, 100, 10, 0), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if diff := float32(math.Abs(float64(got - tt.want))); diff > tt.tol {
				t.Errorf("IoU = %v, want %v (tol %v)", got, tt.want, tt.tol)
			}
			if sym := IoU(tt.b, tt.a); sym != got {
				t.Errorf("IoU not symmetric: %v vs %v", got, sym)
			}
		})
	}
}

func TestDetectionDerivedFields(t *testing.T) {
	d := box(100, 50, 40, 20)
	if d.Left() != 80 || d.Right() != 120 {
		t.Errorf("left/right = %v/%v, want 80/120", d.Left(), d.Right())
	}
	if d.Top() != 40 || d.Bottom() != 60 {
		t.Errorf("top/bottom = %v/%v, want 40/60", d.Top(), d.Bottom())
	}
	if d.Area() != 800 {
		t.Errorf("area = %v, want 800", d.Area())
	}
}

func TestMetricsDerived(t *testing.T) {
	m := Metrics{PreprocessMS: 2, InferenceMS: 5, PostprocessMS: 3}
	if m.TotalMS() != 10 {
		t.Errorf("TotalMS = %v, want 10", m.TotalMS())
	}
	if m.FPS() != 100 {
		t.Errorf("FPS = %v, want 100", m.FPS())
	}

	var zero Metrics
	if zero.FPS() != 0 {
		t.Errorf("FPS of zero metrics = %v, want 0", zero.FPS())
	}
}
