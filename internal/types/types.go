// Package types holds the plain data records shared across the
// detection pipeline, policy engine, PLC controller and persistence
// layers: images, detections, verdicts and per-cycle metrics.
package types

import "math"

// Image is a two-dimensional 8-bit-per-channel pixel buffer. Channels
// is 1 (grayscale) or 3 (BGR, the common machine-vision camera order).
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte // row-major, Channels bytes per pixel
}

// TaskType identifies the output layout a model produces.
type TaskType int

const (
	TaskClassify TaskType = iota
	TaskDetect
	TaskSegment
	TaskPose
	TaskOBB
)

func (t TaskType) String() string {
	switch t {
	case TaskClassify:
		return "classify"
	case TaskDetect:
		return "detect"
	case TaskSegment:
		return "segment"
	case TaskPose:
		return "pose"
	case TaskOBB:
		return "obb"
	default:
		return "unknown"
	}
}

// ModelRole tags which cascade tier produced a result.
type ModelRole int

const (
	RoleNone ModelRole = iota
	RolePrimary
	RoleAuxiliary1
	RoleAuxiliary2
)

func (r ModelRole) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleAuxiliary1:
		return "aux1"
	case RoleAuxiliary2:
		return "aux2"
	default:
		return "none"
	}
}

// Keypoint is one pose landmark: pixel position plus confidence.
type Keypoint struct {
	X, Y  float32
	Score float32
}

// Detection is one object/region found by a model, in source-image
// pixel coordinates.
type Detection struct {
	CenterX    float32
	CenterY    float32
	Width      float32
	Height     float32
	Confidence float32
	ClassID    int

	// Angle is set for oriented-box (OBB) detections, radians.
	Angle    float32
	HasAngle bool

	// Keypoints is set for pose detections.
	Keypoints []Keypoint

	// Mask is a per-pixel segmentation mask cropped to the detection's
	// bounding box, row-major, one byte per pixel (0/255). Nil unless
	// the model is a Segment task.
	Mask       []byte
	MaskWidth  int
	MaskHeight int
}

// Left returns the left edge of the detection's box in pixels.
func (d Detection) Left() float32 { return d.CenterX - d.Width/2 }

// Top returns the top edge of the detection's box in pixels.
func (d Detection) Top() float32 { return d.CenterY - d.Height/2 }

// Right returns the right edge of the detection's box in pixels.
func (d Detection) Right() float32 { return d.CenterX + d.Width/2 }

// Bottom returns the bottom edge of the detection's box in pixels.
func (d Detection) Bottom() float32 { return d.CenterY + d.Height/2 }

// Area returns the detection box's area in square pixels.
func (d Detection) Area() float32 { return d.Width * d.Height }

// IoU computes the intersection-over-union of two axis-aligned boxes.
// Returns 0 if either box has non-positive area or if the union is
// non-positive; boxes that only touch (zero-width or zero-height
// intersection) also score 0.
func IoU(a, b Detection) float32 {
	if a.Width <= 0 || a.Height <= 0 || b.Width <= 0 || b.Height <= 0 {
		return 0
	}

	x1 := math.Max(float64(a.Left()), float64(b.Left()))
	y1 := math.Max(float64(a.Top()), float64(b.Top()))
	x2 := math.Min(float64(a.Right()), float64(b.Right()))
	y2 := math.Min(float64(a.Bottom()), float64(b.Bottom()))

	iw := x2 - x1
	ih := y2 - y1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := iw * ih

	union := float64(a.Area()) + float64(b.Area()) - intersection
	if union <= 0 {
		return 0
	}
	return float32(intersection / union)
}

// CascadeOutcome is the result of running the model cascade once.
type CascadeOutcome struct {
	Detections    []Detection
	UsedRole      ModelRole
	UsedModelName string
	UsedLabels    []string
	WasFallback   bool
}

// DetectionVerdict is the pass/fail decision for one trigger cycle.
type DetectionVerdict struct {
	Passed          bool
	TargetCountSeen int
	TotalDetections int
	Reason          string
}

// Metrics captures one cycle's per-stage timings and throughput.
type Metrics struct {
	PreprocessMS   float64
	InferenceMS    float64
	PostprocessMS  float64
	DetectionCount int
}

// TotalMS is the derived sum of the three stage timings.
func (m Metrics) TotalMS() float64 {
	return m.PreprocessMS + m.InferenceMS + m.PostprocessMS
}

// FPS is derived as 1000/total_ms, or 0 if total is non-positive.
func (m Metrics) FPS() float64 {
	total := m.TotalMS()
	if total <= 0 {
		return 0
	}
	return 1000 / total
}
