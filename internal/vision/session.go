package vision

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/inspectline/internal/types"
)

// DeviceKind selects where a session's model runs.
type DeviceKind int

const (
	DeviceCPU DeviceKind = iota
	DeviceGPU
)

// DeviceHint requests a device for a new session; GPUIndex is only
// meaningful when Kind is DeviceGPU.
type DeviceHint struct {
	Kind     DeviceKind
	GPUIndex int
}

// OutputRole tags what an output tensor carries, so the ModelManager
// knows which bound output to hand to the postprocessor as the main
// decode target versus the Segment task's mask-prototype tensor.
type OutputRole int

const (
	OutputMain OutputRole = iota
	OutputProto
)

// OutputSpec names one of a model's output tensors and its expected
// shape. ONNX Runtime's advanced-session API needs pre-allocated
// output tensors bound to names up front.
type OutputSpec struct {
	Name  string
	Shape []int64
	Role  OutputRole
}

// Session owns one loaded ONNX model. Infer calls on the same Session
// are serialized by an internal mutex, so no two run at once.
type Session struct {
	mu sync.Mutex

	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	outputNames   []string

	path        string
	task        types.TaskType
	versionHint int
	inputW      int
	inputH      int
	labels      []string

	mainOutputName  string
	protoOutputName string

	cpuFallbackWarned bool
}

// NewSession loads an ONNX model for the given task type. inputName is
// the model's single input tensor name; outputs describes every
// output tensor the model produces (scores/boxes/angles/keypoints/
// mask-coefficients/prototypes, depending on task). If the requested
// device is unavailable the session falls back to CPU and logs a
// one-shot warning.
func NewSession(path string, task types.TaskType, versionHint int, inputName string, inputW, inputH int, outputs []OutputSpec, labels []string, hint DeviceHint, opts *ort.SessionOptions) (*Session, error) {
	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor for %s: %w", path, err)
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))
	var mainOutputName, protoOutputName string
	for i, spec := range outputs {
		outputNames[i] = spec.Name
		switch spec.Role {
		case OutputProto:
			protoOutputName = spec.Name
		default:
			mainOutputName = spec.Name
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Shape...))
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %s for %s: %w", spec.Name, path, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	s := &Session{
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		outputNames:   outputNames,
		path:          path,
		task:          task,
		versionHint:   versionHint,
		inputW:          inputW,
		inputH:          inputH,
		labels:          labels,
		mainOutputName:  mainOutputName,
		protoOutputName: protoOutputName,
	}

	if hint.Kind == DeviceGPU {
		if err := tryEnableGPU(opts, hint.GPUIndex); err != nil {
			slog.Warn("gpu device unavailable, falling back to cpu", "model", path, "gpu_index", hint.GPUIndex, "error", err)
			s.cpuFallbackWarned = true
		}
	}

	session, err := ort.NewAdvancedSession(path, []string{inputName}, outputNames, []ort.Value{inputTensor}, outputValues, opts)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("load model %s: %w", path, ErrModelLoad)
	}
	s.session = session

	return s, nil
}

// tryEnableGPU attempts to select a CUDA/GPU execution provider on the
// given session options. Real GPU provider wiring is vendor/runtime
// specific; this records the intent and lets ONNX Runtime's own
// provider-availability check surface failures, which the caller
// treats as a fallback-to-CPU signal rather than a fatal error.
func tryEnableGPU(opts *ort.SessionOptions, index int) error {
	if opts == nil {
		return fmt.Errorf("no session options provided for gpu device %d", index)
	}
	return opts.AppendExecutionProviderCUDA(uint32(index))
}

// Infer runs the model on a preprocessed tensor and returns its raw
// outputs keyed by output name, plus each output's declared shape.
func (s *Session) Infer(tensor Tensor) (map[string]RawOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inputSlice := s.inputTensor.GetData()
	if len(inputSlice) != len(tensor.Data) {
		return nil, fmt.Errorf("infer %s: tensor size %d, want %d: %w", s.path, len(tensor.Data), len(inputSlice), ErrBackend)
	}
	copy(inputSlice, tensor.Data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("infer %s: %w: %v", s.path, ErrBackend, err)
	}

	out := make(map[string]RawOutput, len(s.outputTensors))
	for i, name := range s.outputNames {
		shape := s.outputTensors[i].GetShape()
		intShape := make([]int, len(shape))
		for j, d := range shape {
			intShape[j] = int(d)
		}
		out[name] = RawOutput{Data: s.outputTensors[i].GetData(), Shape: intShape}
	}
	return out, nil
}

// Labels returns the model's ordered label sequence.
func (s *Session) Labels() []string { return s.labels }

// InputExtent returns the model's expected (width, height).
func (s *Session) InputExtent() (int, int) { return s.inputW, s.inputH }

// TaskType returns the model's task type.
func (s *Session) TaskType() types.TaskType { return s.task }

// VersionHint returns the model-version hint used to decide whether
// the postprocessor should skip NMS.
func (s *Session) VersionHint() int { return s.versionHint }

// Path returns the loaded model's file path.
func (s *Session) Path() string { return s.path }

// MainOutputName returns the output tensor name the postprocessor
// should decode as the primary detection output.
func (s *Session) MainOutputName() string { return s.mainOutputName }

// ProtoOutputName returns the mask-prototype output tensor name, or
// "" if the model has none (every task but Segment).
func (s *Session) ProtoOutputName() string { return s.protoOutputName }

// Close releases the session and its bound tensors.
func (s *Session) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	for _, t := range s.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}
