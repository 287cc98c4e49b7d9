package vision

import (
	"fmt"
	"math"
	"sort"

	"github.com/your-org/inspectline/internal/types"
)

// ROI is a region of interest in normalized [0,1] image coordinates.
// An unset or degenerate ROI (width or height below 0.001) is a no-op
// in ROI filtering.
type ROI struct {
	X, Y, W, H float32
}

// Active reports whether the ROI should be applied.
func (r ROI) Active() bool {
	return r.W >= 0.001 && r.H >= 0.001
}

// RawOutput is a model's raw inference output: a flat float32 buffer
// plus its tensor shape, channel-major (shape[0] is the channel/row
// count, shape[1] is the column count).
type RawOutput struct {
	Data  []float32
	Shape []int // e.g. [4+labelCount, N] for Detect
}

func (r RawOutput) at(channel, col, numCols int) float32 {
	return r.Data[channel*numCols+col]
}

// PostprocessConfig bundles the thresholds and policy needed to decode
// one model's raw output into filtered, unmapped detections.
type PostprocessConfig struct {
	Task                types.TaskType
	ConfidenceThreshold float32
	IoUThreshold        float32
	GlobalNMS           bool
	VersionHint         int
	KeypointCount       int // Pose task only
	LabelCount          int
	ROI                 ROI
	SrcW, SrcH          int
	ModelW, ModelH      int // model input extent, used for Classify's full-image box
}

// ProtoOutput is the per-model mask prototype tensor used by Segment
// task decoding, shaped (maskDim, protoH, protoW).
type ProtoOutput struct {
	Data    []float32
	MaskDim int
	ProtoH  int
	ProtoW  int
}

// nmsFreeVersionThreshold is the model-version-hint cutoff at and
// above which the postprocessor skips NMS entirely, for model
// generations whose heads emit already-deduplicated detections;
// confidence filtering and coordinate unmapping still apply.
const nmsFreeVersionThreshold = 26

// Postprocess decodes raw model output into detections: per-task
// decode, confidence filter, NMS (unless the model's version hint is
// NMS-free), coordinate unmapping, ROI filter.
func Postprocess(raw RawOutput, proto *ProtoOutput, transform LetterboxTransform, cfg PostprocessConfig) ([]Detection, error) {
	var detections []Detection
	var err error

	switch cfg.Task {
	case types.TaskClassify:
		detections, err = decodeClassify(raw, cfg)
	case types.TaskDetect:
		detections, err = decodeDetect(raw, cfg, false)
	case types.TaskOBB:
		detections, err = decodeDetect(raw, cfg, true)
	case types.TaskPose:
		detections, err = decodePose(raw, cfg)
	case types.TaskSegment:
		detections, err = decodeSegment(raw, proto, cfg)
	default:
		return nil, fmt.Errorf("postprocess task %v: %w", cfg.Task, ErrInvalidOutput)
	}
	if err != nil {
		return nil, err
	}

	// Unmap to source-image coordinates before NMS/ROI, which both
	// operate in pixel space.
	for i := range detections {
		detections[i] = unmapDetection(detections[i], transform)
	}

	if cfg.Task != types.TaskClassify && cfg.VersionHint < nmsFreeVersionThreshold {
		detections = NMS(detections, cfg.IoUThreshold, cfg.GlobalNMS)
	}

	if cfg.ROI.Active() {
		detections = filterROI(detections, cfg.ROI, cfg.SrcW, cfg.SrcH)
	}

	return detections, nil
}

func unmapDetection(d Detection, t LetterboxTransform) Detection {
	d.CenterX, d.CenterY, d.Width, d.Height = t.UnmapBox(d.CenterX, d.CenterY, d.Width, d.Height)
	for i, kp := range d.Keypoints {
		x, y := t.UnmapPoint(kp.X, kp.Y)
		d.Keypoints[i].X, d.Keypoints[i].Y = x, y
	}
	return d
}

func decodeClassify(raw RawOutput, cfg PostprocessConfig) ([]Detection, error) {
	if len(raw.Shape) != 1 || raw.Shape[0] != cfg.LabelCount {
		return nil, fmt.Errorf("decode classify shape %v, want [%d]: %w", raw.Shape, cfg.LabelCount, ErrInvalidOutput)
	}

	bestClass := 0
	bestScore := raw.Data[0]
	for i := 1; i < cfg.LabelCount; i++ {
		if raw.Data[i] > bestScore {
			bestScore = raw.Data[i]
			bestClass = i
		}
	}

	// Full-image box, in model-input pixel coordinates (unmapped by
	// the caller along with everything else).
	modelW := float32(cfg.ModelW)
	modelH := float32(cfg.ModelH)
	return []Detection{{
		CenterX:    modelW / 2,
		CenterY:    modelH / 2,
		Width:      modelW,
		Height:     modelH,
		Confidence: bestScore,
		ClassID:    bestClass,
	}}, nil
}

// decodeDetect handles both standard Detect output (4+labelCount rows)
// and OrientedBox output (5+labelCount rows, trailing angle channel).
func decodeDetect(raw RawOutput, cfg PostprocessConfig, obb bool) ([]Detection, error) {
	if len(raw.Shape) != 2 {
		return nil, fmt.Errorf("decode detect shape %v: %w", raw.Shape, ErrInvalidOutput)
	}
	boxCols := 4
	if obb {
		boxCols = 5
	}
	wantRows := boxCols + cfg.LabelCount
	rows, numCols := raw.Shape[0], raw.Shape[1]
	if rows != wantRows {
		return nil, fmt.Errorf("decode detect rows=%d want=%d: %w", rows, wantRows, ErrInvalidOutput)
	}

	var detections []Detection
	for col := 0; col < numCols; col++ {
		classID, confidence := argmaxScore(raw, boxCols, cfg.LabelCount, col, numCols)
		if confidence < cfg.ConfidenceThreshold {
			continue
		}
		d := Detection{
			CenterX:    raw.at(0, col, numCols),
			CenterY:    raw.at(1, col, numCols),
			Width:      raw.at(2, col, numCols),
			Height:     raw.at(3, col, numCols),
			Confidence: confidence,
			ClassID:    classID,
		}
		if obb {
			d.Angle = raw.at(4, col, numCols)
			d.HasAngle = true
		}
		if d.Width > 0 && d.Height > 0 {
			detections = append(detections, d)
		}
	}
	return detections, nil
}

func decodePose(raw RawOutput, cfg PostprocessConfig) ([]Detection, error) {
	if len(raw.Shape) != 2 {
		return nil, fmt.Errorf("decode pose shape %v: %w", raw.Shape, ErrInvalidOutput)
	}
	kpCols := 3 * cfg.KeypointCount
	wantRows := 4 + cfg.LabelCount + kpCols
	rows, numCols := raw.Shape[0], raw.Shape[1]
	if rows != wantRows {
		return nil, fmt.Errorf("decode pose rows=%d want=%d: %w", rows, wantRows, ErrInvalidOutput)
	}

	var detections []Detection
	for col := 0; col < numCols; col++ {
		classID, confidence := argmaxScore(raw, 4, cfg.LabelCount, col, numCols)
		if confidence < cfg.ConfidenceThreshold {
			continue
		}
		d := Detection{
			CenterX:    raw.at(0, col, numCols),
			CenterY:    raw.at(1, col, numCols),
			Width:      raw.at(2, col, numCols),
			Height:     raw.at(3, col, numCols),
			Confidence: confidence,
			ClassID:    classID,
		}
		if d.Width <= 0 || d.Height <= 0 {
			continue
		}
		kpBase := 4 + cfg.LabelCount
		d.Keypoints = make([]Keypoint, cfg.KeypointCount)
		for k := 0; k < cfg.KeypointCount; k++ {
			d.Keypoints[k] = Keypoint{
				X:     raw.at(kpBase+3*k, col, numCols),
				Y:     raw.at(kpBase+3*k+1, col, numCols),
				Score: raw.at(kpBase+3*k+2, col, numCols),
			}
		}
		detections = append(detections, d)
	}
	return detections, nil
}

func decodeSegment(raw RawOutput, proto *ProtoOutput, cfg PostprocessConfig) ([]Detection, error) {
	if len(raw.Shape) != 2 {
		return nil, fmt.Errorf("decode segment shape %v: %w", raw.Shape, ErrInvalidOutput)
	}
	if proto == nil {
		return nil, fmt.Errorf("decode segment: missing prototype tensor: %w", ErrInvalidOutput)
	}
	maskDim := proto.MaskDim
	wantRows := 4 + cfg.LabelCount + maskDim
	rows, numCols := raw.Shape[0], raw.Shape[1]
	if rows != wantRows {
		return nil, fmt.Errorf("decode segment rows=%d want=%d: %w", rows, wantRows, ErrInvalidOutput)
	}

	var detections []Detection
	coeffBase := 4 + cfg.LabelCount
	for col := 0; col < numCols; col++ {
		classID, confidence := argmaxScore(raw, 4, cfg.LabelCount, col, numCols)
		if confidence < cfg.ConfidenceThreshold {
			continue
		}
		d := Detection{
			CenterX:    raw.at(0, col, numCols),
			CenterY:    raw.at(1, col, numCols),
			Width:      raw.at(2, col, numCols),
			Height:     raw.at(3, col, numCols),
			Confidence: confidence,
			ClassID:    classID,
		}
		if d.Width <= 0 || d.Height <= 0 {
			continue
		}
		coeffs := make([]float32, maskDim)
		for k := 0; k < maskDim; k++ {
			coeffs[k] = raw.at(coeffBase+k, col, numCols)
		}
		d.Mask, d.MaskWidth, d.MaskHeight = combineMask(proto, coeffs)
		detections = append(detections, d)
	}
	return detections, nil
}

// combineMask linearly combines the prototype planes with the
// per-detection coefficients, applies a sigmoid, and thresholds at
// 0.5 to produce a binary mask at the prototype's resolution.
func combineMask(proto *ProtoOutput, coeffs []float32) ([]byte, int, int) {
	planeSize := proto.ProtoH * proto.ProtoW
	mask := make([]byte, planeSize)
	for i := 0; i < planeSize; i++ {
		var sum float64
		for k := 0; k < proto.MaskDim; k++ {
			sum += float64(coeffs[k]) * float64(proto.Data[k*planeSize+i])
		}
		sigmoid := 1 / (1 + math.Exp(-sum))
		if sigmoid >= 0.5 {
			mask[i] = 255
		}
	}
	return mask, proto.ProtoW, proto.ProtoH
}

func argmaxScore(raw RawOutput, scoreBase, labelCount, col, numCols int) (int, float32) {
	best := 0
	bestScore := raw.at(scoreBase, col, numCols)
	for c := 1; c < labelCount; c++ {
		v := raw.at(scoreBase+c, col, numCols)
		if v > bestScore {
			bestScore = v
			best = c
		}
	}
	return best, bestScore
}

// NMS performs non-maximum suppression: sorted by descending
// confidence, each survivor suppresses later boxes above the IoU
// threshold. Per-class by default; global when cfg requests it. Ties
// in confidence are broken by original index (stable sort).
func NMS(detections []Detection, iouThreshold float32, global bool) []Detection {
	if len(detections) == 0 {
		return detections
	}

	order := make([]int, len(detections))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return detections[order[i]].Confidence > detections[order[j]].Confidence
	})

	suppressed := make([]bool, len(detections))
	var kept []Detection
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, detections[i])
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if !global && detections[j].ClassID != detections[i].ClassID {
				continue
			}
			if types.IoU(detections[i], detections[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// filterROI retains only detections whose center lies inside the ROI,
// expressed in pixel coordinates derived from the source image
// extent.
func filterROI(detections []Detection, roi ROI, srcW, srcH int) []Detection {
	x0 := roi.X * float32(srcW)
	y0 := roi.Y * float32(srcH)
	x1 := x0 + roi.W*float32(srcW)
	y1 := y0 + roi.H*float32(srcH)

	var kept []Detection
	for _, d := range detections {
		if d.CenterX >= x0 && d.CenterX <= x1 && d.CenterY >= y0 && d.CenterY <= y1 {
			kept = append(kept, d)
		}
	}
	return kept
}
