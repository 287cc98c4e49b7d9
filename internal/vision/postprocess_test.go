package vision

import (
	"errors"
	"math"
	"testing"

	"github.com/your-org/inspectline/internal/types"
)

// identityTransform maps model-input coordinates straight through.
func identityTransform(w, h int) LetterboxTransform {
	return LetterboxTransform{Scale: 1, PadX: 0, PadY: 0, SrcW: w, SrcH: h}
}

// detectOutput builds a channel-major (4+labels, N) raw output from
// per-column (cx, cy, w, h, scores...) rows.
func detectOutput(labelCount int, cols [][]float32) RawOutput {
	rows := 4 + labelCount
	n := len(cols)
	data := make([]float32, rows*n)
	for col, values := range cols {
		for row, v := range values {
			data[row*n+col] = v
		}
	}
	return RawOutput{Data: data, Shape: []int{rows, n}}
}

func detectConfig(labelCount int) PostprocessConfig {
	return PostprocessConfig{
		Task:                types.TaskDetect,
		ConfidenceThreshold: 0.25,
		IoUThreshold:        0.5,
		VersionHint:         8,
		LabelCount:          labelCount,
		SrcW:                640,
		SrcH:                640,
		ModelW:              640,
		ModelH:              640,
	}
}

func TestPostprocessDetect(t *testing.T) {
	raw := detectOutput(2, [][]float32{
		{100, 100, 50, 50, 0.9, 0.1},
		{300, 300, 40, 40, 0.05, 0.7},
		{500, 500, 40, 40, 0.1, 0.1}, // below threshold
	})

	dets, err := Postprocess(raw, nil, identityTransform(640, 640), detectConfig(2))
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2", len(dets))
	}
	if dets[0].ClassID != 0 || dets[0].Confidence != 0.9 {
		t.Errorf("first detection = class %d conf %v, want class 0 conf 0.9", dets[0].ClassID, dets[0].Confidence)
	}
	if dets[1].ClassID != 1 || dets[1].Confidence != 0.7 {
		t.Errorf("second detection = class %d conf %v, want class 1 conf 0.7", dets[1].ClassID, dets[1].Confidence)
	}
	for _, d := range dets {
		if d.Confidence < 0 || d.Confidence > 1 {
			t.Errorf("confidence %v out of [0,1]", d.Confidence)
		}
		if d.Width <= 0 || d.Height <= 0 {
			t.Errorf("non-positive box %vx%v", d.Width, d.Height)
		}
		if d.ClassID < 0 || d.ClassID >= 2 {
			t.Errorf("class id %d out of range", d.ClassID)
		}
	}
}

func TestPostprocessNMSSuppressesDuplicates(t *testing.T) {
	// Two identical boxes, same class, confidences 0.9 and 0.8: only
	// the 0.9 box survives NMS at iou=0.5.
	raw := detectOutput(1, [][]float32{
		{100, 100, 50, 50, 0.9},
		{100, 100, 50, 50, 0.8},
	})

	dets, err := Postprocess(raw, nil, identityTransform(640, 640), detectConfig(1))
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	if dets[0].Confidence != 0.9 {
		t.Errorf("kept confidence %v, want 0.9", dets[0].Confidence)
	}
}

func TestPostprocessNMSPerClassVsGlobal(t *testing.T) {
	// Same overlapping boxes but different classes: per-class NMS
	// keeps both, global NMS keeps only the stronger.
	cols := [][]float32{
		{100, 100, 50, 50, 0.9, 0.0},
		{100, 100, 50, 50, 0.0, 0.8},
	}

	cfg := detectConfig(2)
	dets, err := Postprocess(detectOutput(2, cols), nil, identityTransform(640, 640), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 2 {
		t.Errorf("per-class: got %d detections, want 2", len(dets))
	}

	cfg.GlobalNMS = true
	dets, err = Postprocess(detectOutput(2, cols), nil, identityTransform(640, 640), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 1 {
		t.Errorf("global: got %d detections, want 1", len(dets))
	}
}

func TestNMSRetainedPairsRespectThreshold(t *testing.T) {
	dets := []Detection{
		{CenterX: 100, CenterY: 100, Width: 50, Height: 50, Confidence: 0.9, ClassID: 0},
		{CenterX: 110, CenterY: 110, Width: 50, Height: 50, Confidence: 0.8, ClassID: 0},
		{CenterX: 300, CenterY: 300, Width: 50, Height: 50, Confidence: 0.7, ClassID: 0},
	}

	kept := NMS(dets, 0.5, false)
	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			if kept[i].ClassID != kept[j].ClassID {
				continue
			}
			if iou := types.IoU(kept[i], kept[j]); iou > 0.5 {
				t.Errorf("retained pair IoU %v exceeds threshold", iou)
			}
		}
	}
}

func TestPostprocessNMSFreeModelSkipsNMS(t *testing.T) {
	raw := detectOutput(1, [][]float32{
		{100, 100, 50, 50, 0.9},
		{100, 100, 50, 50, 0.8},
	})

	cfg := detectConfig(1)
	cfg.VersionHint = 26
	dets, err := Postprocess(raw, nil, identityTransform(640, 640), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	// Both duplicates survive; confidence filtering still applied.
	if len(dets) != 2 {
		t.Errorf("got %d detections, want 2 (NMS skipped)", len(dets))
	}
}

func TestPostprocessROIFilter(t *testing.T) {
	raw := detectOutput(1, [][]float32{
		{100, 100, 50, 50, 0.9}, // inside top-left quadrant
		{500, 500, 50, 50, 0.8}, // outside
	})

	cfg := detectConfig(1)
	cfg.ROI = ROI{X: 0, Y: 0, W: 0.5, H: 0.5}
	dets, err := Postprocess(raw, nil, identityTransform(640, 640), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	if dets[0].CenterX != 100 {
		t.Errorf("kept wrong detection at cx=%v", dets[0].CenterX)
	}
}

func TestROIDegenerate(t *testing.T) {
	if (ROI{W: 0.0005, H: 0.5}).Active() {
		t.Error("degenerate-width ROI reported active")
	}
	if (ROI{}).Active() {
		t.Error("zero ROI reported active")
	}
	if !(ROI{X: 0.1, Y: 0.1, W: 0.5, H: 0.5}).Active() {
		t.Error("valid ROI reported inactive")
	}
}

func TestPostprocessOBBAngle(t *testing.T) {
	// OBB layout: (cx, cy, w, h, angle, scores...).
	rows := 5 + 1
	data := make([]float32, rows)
	copy(data, []float32{100, 100, 50, 30, 0.5, 0.9})
	raw := RawOutput{Data: data, Shape: []int{rows, 1}}

	cfg := detectConfig(1)
	cfg.Task = types.TaskOBB
	dets, err := Postprocess(raw, nil, identityTransform(640, 640), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	if !dets[0].HasAngle || math.Abs(float64(dets[0].Angle-0.5)) > 1e-6 {
		t.Errorf("angle = %v (has=%v), want 0.5", dets[0].Angle, dets[0].HasAngle)
	}
}

func TestPostprocessClassify(t *testing.T) {
	raw := RawOutput{Data: []float32{0.1, 0.7, 0.2}, Shape: []int{3}}

	cfg := PostprocessConfig{
		Task:       types.TaskClassify,
		LabelCount: 3,
		SrcW:       320,
		SrcH:       320,
		ModelW:     320,
		ModelH:     320,
	}
	dets, err := Postprocess(raw, nil, identityTransform(320, 320), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	if dets[0].ClassID != 1 {
		t.Errorf("class = %d, want 1", dets[0].ClassID)
	}
	// Full-image box.
	if dets[0].Width != 320 || dets[0].Height != 320 {
		t.Errorf("box = %vx%v, want 320x320", dets[0].Width, dets[0].Height)
	}
}

func TestPostprocessPoseKeypoints(t *testing.T) {
	// Pose layout: (cx, cy, w, h, score, kx, ky, kscore) for K=1.
	rows := 4 + 1 + 3
	data := make([]float32, rows)
	copy(data, []float32{100, 100, 50, 50, 0.9, 90, 80, 0.95})
	raw := RawOutput{Data: data, Shape: []int{rows, 1}}

	cfg := detectConfig(1)
	cfg.Task = types.TaskPose
	cfg.KeypointCount = 1
	dets, err := Postprocess(raw, nil, identityTransform(640, 640), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 1 || len(dets[0].Keypoints) != 1 {
		t.Fatalf("got %d detections, keypoints %v", len(dets), dets)
	}
	kp := dets[0].Keypoints[0]
	if kp.X != 90 || kp.Y != 80 || kp.Score != 0.95 {
		t.Errorf("keypoint = %+v, want (90, 80, 0.95)", kp)
	}
}

func TestPostprocessSegmentMask(t *testing.T) {
	// One detection with a single mask coefficient; 2x2 prototype.
	maskDim := 1
	rows := 4 + 1 + maskDim
	data := make([]float32, rows)
	copy(data, []float32{100, 100, 50, 50, 0.9, 5}) // coeff 5: strongly positive
	raw := RawOutput{Data: data, Shape: []int{rows, 1}}

	proto := &ProtoOutput{
		Data:    []float32{1, -1, 1, -1},
		MaskDim: maskDim,
		ProtoH:  2,
		ProtoW:  2,
	}

	cfg := detectConfig(1)
	cfg.Task = types.TaskSegment
	dets, err := Postprocess(raw, proto, identityTransform(640, 640), cfg)
	if err != nil {
		t.Fatalf("Postprocess: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	d := dets[0]
	if d.MaskWidth != 2 || d.MaskHeight != 2 {
		t.Fatalf("mask extent %dx%d, want 2x2", d.MaskWidth, d.MaskHeight)
	}
	want := []byte{255, 0, 255, 0}
	for i, v := range want {
		if d.Mask[i] != v {
			t.Errorf("mask[%d] = %d, want %d", i, d.Mask[i], v)
		}
	}
}

func TestPostprocessInvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  RawOutput
		cfg  PostprocessConfig
	}{
		{"detect wrong rows", detectOutput(3, [][]float32{{0, 0, 0, 0, 0, 0, 0}}), detectConfig(2)},
		{"classify wrong len", RawOutput{Data: []float32{1, 2}, Shape: []int{2}}, PostprocessConfig{Task: types.TaskClassify, LabelCount: 3}},
		{"segment missing proto", detectOutput(1, nil), func() PostprocessConfig {
			c := detectConfig(1)
			c.Task = types.TaskSegment
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Postprocess(tt.raw, nil, identityTransform(640, 640), tt.cfg)
			if !errors.Is(err, ErrInvalidOutput) {
				t.Errorf("err = %v, want ErrInvalidOutput", err)
			}
		})
	}
}
