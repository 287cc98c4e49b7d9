// Command simulator runs the full inspection pipeline against
// simulated collaborators: a synthetic camera, an in-memory PLC whose
// trigger register this process fires itself, and a stub detector
// session that needs no model file or ONNX runtime. It exists to
// exercise the trigger cycle end to end on a developer machine.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/your-org/inspectline/internal/camera"
	"github.com/your-org/inspectline/internal/observability"
	"github.com/your-org/inspectline/internal/orchestrator"
	"github.com/your-org/inspectline/internal/persistence"
	"github.com/your-org/inspectline/internal/plc"
	"github.com/your-org/inspectline/internal/types"
	"github.com/your-org/inspectline/internal/vision"
)

// stubSession is a model-free InferenceSession producing one centered
// "widget" detection on most frames and an empty result every fourth,
// so the retry and NG paths both run.
type stubSession struct {
	n atomic.Uint64
}

func (s *stubSession) Infer(tensor vision.Tensor) (map[string]vision.RawOutput, error) {
	n := s.n.Add(1)
	score := float32(0.9)
	if n%4 == 0 {
		score = 0
	}
	data := []float32{32, 32, 16, 16, score}
	return map[string]vision.RawOutput{
		"output0": {Data: data, Shape: []int{5, 1}},
	}, nil
}

func (s *stubSession) Labels() []string         { return []string{"widget"} }
func (s *stubSession) InputExtent() (int, int)  { return 64, 64 }
func (s *stubSession) TaskType() types.TaskType { return types.TaskDetect }
func (s *stubSession) VersionHint() int         { return 8 }
func (s *stubSession) Path() string             { return "stub://widget" }
func (s *stubSession) MainOutputName() string   { return "output0" }
func (s *stubSession) ProtoOutputName() string  { return "" }

func main() {
	storageRoot := flag.String("storage-root", "./simdata", "image/log storage root")
	triggerEvery := flag.Duration("trigger-every", 5*time.Second, "interval between simulated PLC triggers")
	flag.Parse()

	observability.SetupLogger("info", "text")

	manager := vision.NewModelManager(false)
	manager.LoadPrimary(&stubSession{})
	defer manager.Close()

	handoff := camera.NewFrameHandoff()
	cam := camera.NewSyntheticAdapter(640, 480, 3, 100*time.Millisecond)

	queue := persistence.NewQueue(64, nil)
	recorder := observability.NewRecorder()
	detectionLog := observability.NewDetectionLogWriter(*storageRoot)

	orch := orchestrator.New(orchestrator.Config{
		TargetLabel:   "widget",
		TargetCount:   1,
		MaxRetryCount: 1,
		RetryInterval: 500 * time.Millisecond,
		StorageRoot:   *storageRoot,
		JPEGQuality:   70,
		RunConfig:     vision.RunConfig{Confidence: 0.25, IoU: 0.5},
	}, handoff, cam, manager, queue, recorder, detectionLog, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cam.Start(ctx, handoff); err != nil {
		slog.Error("start synthetic camera", "error", err)
		os.Exit(1)
	}
	defer cam.Stop()

	go queue.Run(ctx)

	adapter := plc.NewSimulatedAdapter()
	const triggerAddr, resultAddr = "D555", "D556"
	controller := plc.NewController(adapter, triggerAddr, resultAddr, 100, 100, orch.RunCycle)
	go func() {
		if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("plc controller stopped", "error", err)
		}
	}()

	// Fire the trigger register the way a real PLC would, and report
	// the verdict it reads back.
	go func() {
		ticker := time.NewTicker(*triggerEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				adapter.Set(triggerAddr, 1)
				slog.Info("simulated trigger fired", "address", triggerAddr)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var lastState plc.State
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if st := controller.State(); st != lastState {
					slog.Info("plc state", "state", st.String(), "result_register", adapter.Get(resultAddr))
					lastState = st
				}
			}
		}
	}()

	slog.Info("simulator running", "storage_root", *storageRoot, "trigger_every", triggerEvery.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("simulator stopping")
	cancel()
	queue.Shutdown(5 * time.Second)
	cam.Stop()
}
