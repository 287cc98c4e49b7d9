package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/inspectline/internal/camera"
	"github.com/your-org/inspectline/internal/observability"
	"github.com/your-org/inspectline/internal/persistence"
	"github.com/your-org/inspectline/internal/types"
	"github.com/your-org/inspectline/internal/vision"
)

// scriptedSession returns one detection column per Infer call, with
// the confidence taken from the script (last value repeats), so a
// test can make the first attempt come up empty and the retry hit.
type scriptedSession struct {
	labels  []string
	script  []float32
	calls   atomic.Int32
	blockCh chan struct{} // if set, Infer waits here before returning
	entered chan struct{} // closed once the first Infer starts
}

func (s *scriptedSession) Infer(tensor vision.Tensor) (map[string]vision.RawOutput, error) {
	n := int(s.calls.Add(1))
	if s.entered != nil && n == 1 {
		close(s.entered)
	}
	if s.blockCh != nil {
		<-s.blockCh
	}
	idx := n - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	rows := 4 + len(s.labels)
	data := make([]float32, rows)
	copy(data, []float32{32, 32, 16, 16})
	data[4] = s.script[idx]
	return map[string]vision.RawOutput{
		"output0": {Data: data, Shape: []int{rows, 1}},
	}, nil
}

func (s *scriptedSession) Labels() []string         { return s.labels }
func (s *scriptedSession) InputExtent() (int, int)  { return 64, 64 }
func (s *scriptedSession) TaskType() types.TaskType { return types.TaskDetect }
func (s *scriptedSession) VersionHint() int         { return 8 }
func (s *scriptedSession) Path() string             { return "/models/test.onnx" }
func (s *scriptedSession) MainOutputName() string   { return "output0" }
func (s *scriptedSession) ProtoOutputName() string  { return "" }

func newTestOrchestrator(t *testing.T, session vision.InferenceSession, maxRetry int) (*Orchestrator, *camera.FrameHandoff, *persistence.Queue, string) {
	t.Helper()
	root := t.TempDir()

	manager := vision.NewModelManager(false)
	manager.LoadPrimary(session)

	handoff := camera.NewFrameHandoff()
	adapter := camera.NewSyntheticAdapter(64, 64, 3, time.Second)
	queue := persistence.NewQueue(8, nil)

	cfg := Config{
		TargetLabel:   "",
		TargetCount:   1,
		MaxRetryCount: maxRetry,
		RetryInterval: time.Millisecond,
		StorageRoot:   root,
		JPEGQuality:   70,
		RunConfig:     vision.RunConfig{Confidence: 0.25, IoU: 0.5},
	}

	orch := New(cfg, handoff, adapter, manager, queue, observability.NewRecorder(),
		observability.NewDetectionLogWriter(root), nil, nil, nil)
	return orch, handoff, queue, root
}

func listImages(t *testing.T, root, qualifier string) []string {
	t.Helper()
	var files []string
	base := filepath.Join(root, "Images", qualifier)
	filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func TestRunCycleRetryThenPass(t *testing.T) {
	// First attempt sees nothing, retry sees one detection: the cycle
	// passes, exactly one image is persisted (the final attempt's,
	// under Qualified), and the session ran twice.
	session := &scriptedSession{labels: []string{"screw"}, script: []float32{0, 0.9}}
	orch, handoff, queue, root := newTestOrchestrator(t, session, 1)

	handoff.Publish(types.Image{Width: 64, Height: 64, Channels: 3, Pix: make([]byte, 64*64*3)})

	passed, err := orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !passed {
		t.Fatal("cycle did not pass after retry")
	}
	if got := session.calls.Load(); got != 2 {
		t.Errorf("inference calls = %d, want 2", got)
	}

	queue.Shutdown(2 * time.Second)

	qualified := listImages(t, root, "Qualified")
	unqualified := listImages(t, root, "Unqualified")
	if len(qualified) != 1 {
		t.Errorf("qualified images = %d, want 1", len(qualified))
	}
	if len(unqualified) != 0 {
		t.Errorf("unqualified images = %d, want 0 (intermediate NG never persisted)", len(unqualified))
	}
	if len(qualified) == 1 && !strings.Contains(filepath.Base(qualified[0]), "PASS_") {
		t.Errorf("qualified image name = %q, want PASS_ prefix", qualified[0])
	}
}

func TestRunCycleFinalNG(t *testing.T) {
	session := &scriptedSession{labels: []string{"screw"}, script: []float32{0}}
	orch, handoff, queue, root := newTestOrchestrator(t, session, 1)

	handoff.Publish(types.Image{Width: 64, Height: 64, Channels: 3, Pix: make([]byte, 64*64*3)})

	passed, err := orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if passed {
		t.Fatal("cycle passed with no detections")
	}
	if got := session.calls.Load(); got != 2 {
		t.Errorf("inference calls = %d, want 2 (initial + one retry)", got)
	}

	queue.Shutdown(2 * time.Second)

	unqualified := listImages(t, root, "Unqualified")
	if len(unqualified) != 1 {
		t.Errorf("unqualified images = %d, want 1", len(unqualified))
	}
}

func TestRunCycleSingleInflight(t *testing.T) {
	session := &scriptedSession{
		labels:  []string{"screw"},
		script:  []float32{0.9},
		blockCh: make(chan struct{}),
		entered: make(chan struct{}),
	}
	orch, handoff, _, _ := newTestOrchestrator(t, session, 0)

	handoff.Publish(types.Image{Width: 64, Height: 64, Channels: 3, Pix: make([]byte, 64*64*3)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.RunCycle(context.Background())
	}()

	<-session.entered

	// A second trigger while the first cycle is in flight is dropped,
	// not queued.
	if _, err := orch.RunCycle(context.Background()); err == nil {
		t.Error("concurrent RunCycle did not report busy")
	}
	if got := orch.DroppedTriggers(); got != 1 {
		t.Errorf("dropped triggers = %d, want 1", got)
	}

	close(session.blockCh)
	<-done
}

func TestRunCycleFallsBackToCaptureOnce(t *testing.T) {
	// No frame published: the manual-trigger path captures on demand
	// instead of failing the cycle.
	session := &scriptedSession{labels: []string{"screw"}, script: []float32{0.9}}
	orch, _, _, _ := newTestOrchestrator(t, session, 0)

	passed, err := orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !passed {
		t.Error("cycle did not pass")
	}
}

func TestRunCycleWritesDetectionLog(t *testing.T) {
	session := &scriptedSession{labels: []string{"screw"}, script: []float32{0.9}}
	orch, handoff, _, root := newTestOrchestrator(t, session, 0)

	handoff.Publish(types.Image{Width: 64, Height: 64, Channels: 3, Pix: make([]byte, 64*64*3)})

	if _, err := orch.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	var logFiles []string
	filepath.Walk(filepath.Join(root, "Logs"), func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			logFiles = append(logFiles, path)
		}
		return nil
	})
	if len(logFiles) != 1 {
		t.Fatalf("detection log files = %d, want 1", len(logFiles))
	}
	data, _ := os.ReadFile(logFiles[0])
	if !strings.Contains(string(data), "screw") {
		t.Errorf("detection log missing label:\n%s", data)
	}
}
