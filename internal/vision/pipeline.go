package vision

import (
	"time"

	"github.com/your-org/inspectline/internal/types"
)

// Timing captures one pipeline pass's per-stage durations, measured
// with a monotonic clock around preprocess/inference/postprocess
// respectively.
type Timing struct {
	PreprocessMS  float64
	InferenceMS   float64
	PostprocessMS float64
}

func elapsedMS(since time.Time) float64 {
	return float64(time.Since(since)) / float64(time.Millisecond)
}

// InferenceSession owns a loaded model and exposes inference plus the
// model's labels, input extent and task type. Both *Session (the ONNX
// Runtime-backed implementation) and test fakes satisfy it, which is
// what lets ModelManager and the Orchestrator be exercised without a
// real model file or GPU.
type InferenceSession interface {
	Infer(tensor Tensor) (map[string]RawOutput, error)
	Labels() []string
	InputExtent() (int, int)
	TaskType() types.TaskType
	VersionHint() int
	Path() string
	MainOutputName() string
	ProtoOutputName() string
}

// RunConfig bundles the thresholds one full preprocess+infer+
// postprocess pass needs.
type RunConfig struct {
	Confidence    float32
	IoU           float32
	GlobalIoU     bool
	ROI           ROI
	KeypointCount int
}

// Run executes one full pipeline pass for a single session: letterbox
// preprocess, inference, and decode/filter/NMS/ROI postprocess. It is
// the unit of work the ModelManager's cascade repeats per tier.
func Run(session InferenceSession, src types.Image, cfg RunConfig) ([]Detection, Timing, error) {
	var timing Timing

	t0 := time.Now()
	modelW, modelH := session.InputExtent()
	tensor, transform, err := Preprocess(src, modelW, modelH)
	timing.PreprocessMS = elapsedMS(t0)
	if err != nil {
		return nil, timing, err
	}

	t1 := time.Now()
	outputs, err := session.Infer(tensor)
	timing.InferenceMS = elapsedMS(t1)
	if err != nil {
		return nil, timing, err
	}

	raw, ok := outputs[session.MainOutputName()]
	if !ok {
		return nil, timing, ErrInvalidOutput
	}

	var proto *ProtoOutput
	if protoName := session.ProtoOutputName(); protoName != "" {
		if p, ok := outputs[protoName]; ok && len(p.Shape) == 3 {
			proto = &ProtoOutput{Data: p.Data, MaskDim: p.Shape[0], ProtoH: p.Shape[1], ProtoW: p.Shape[2]}
		}
	}

	labels := session.Labels()
	pcfg := PostprocessConfig{
		Task:                session.TaskType(),
		ConfidenceThreshold: cfg.Confidence,
		IoUThreshold:        cfg.IoU,
		GlobalNMS:           cfg.GlobalIoU,
		VersionHint:         session.VersionHint(),
		KeypointCount:       cfg.KeypointCount,
		LabelCount:          len(labels),
		ROI:                 cfg.ROI,
		SrcW:                src.Width,
		SrcH:                src.Height,
		ModelW:              modelW,
		ModelH:              modelH,
	}

	t2 := time.Now()
	dets, err := Postprocess(raw, proto, transform, pcfg)
	timing.PostprocessMS = elapsedMS(t2)
	return dets, timing, err
}
