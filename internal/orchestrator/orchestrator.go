// Package orchestrator wires the frame handoff, model cascade, policy
// engine, persistence queue, metrics recorder, statistics ledger, and
// event bus into a trigger-driven pipeline with a manual-trigger path
// and a single-inflight busy guard. The retry loop lives here rather
// than in the PLC controller: retrying means re-running the whole
// detection pipeline, not re-issuing PLC reads.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/inspectline/internal/camera"
	"github.com/your-org/inspectline/internal/eventbus"
	"github.com/your-org/inspectline/internal/observability"
	"github.com/your-org/inspectline/internal/persistence"
	"github.com/your-org/inspectline/internal/policy"
	"github.com/your-org/inspectline/internal/storage"
	"github.com/your-org/inspectline/internal/types"
	"github.com/your-org/inspectline/internal/vision"
)

// UIController is the push-only operator-UI surface the Orchestrator
// updates after each cycle.
type UIController interface {
	UpdateStats(total, ok, ng int)
	UpdateResult(passed bool)
	UpdateImage(contentType string, data []byte)
	Log(msg, level string)
	observability.MetricsPublisher
}

// Config bundles the policy/retry/storage knobs RunCycle needs.
type Config struct {
	TargetLabel   string
	TargetCount   int
	MaxRetryCount int
	RetryInterval time.Duration
	StorageRoot   string
	JPEGQuality   int
	RunConfig     vision.RunConfig
}

// Orchestrator wires the frame handoff, model cascade, policy engine,
// persistence queue, metrics recorder, statistics ledger, and event
// bus into one trigger-cycle operation.
type Orchestrator struct {
	cfg Config

	handoff       *camera.FrameHandoff
	cameraAdapter camera.Adapter
	manager       *vision.ModelManager
	queue         *persistence.Queue
	recorder      *observability.Recorder
	detectionLog  *observability.DetectionLogWriter
	stats         storage.StatsStore
	bus           *eventbus.Bus
	ui            UIController

	busy            atomic.Bool
	droppedTriggers atomic.Uint64

	totalCycles atomic.Uint64
	okCycles    atomic.Uint64
	ngCycles    atomic.Uint64
}

// New builds an Orchestrator. stats, bus, and ui may be nil if those
// collaborators are not wired up (e.g. in tests).
func New(
	cfg Config,
	handoff *camera.FrameHandoff,
	cameraAdapter camera.Adapter,
	manager *vision.ModelManager,
	queue *persistence.Queue,
	recorder *observability.Recorder,
	detectionLog *observability.DetectionLogWriter,
	stats storage.StatsStore,
	bus *eventbus.Bus,
	ui UIController,
) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		handoff:       handoff,
		cameraAdapter: cameraAdapter,
		manager:       manager,
		queue:         queue,
		recorder:      recorder,
		detectionLog:  detectionLog,
		stats:         stats,
		bus:           bus,
		ui:            ui,
	}
}

// DroppedTriggers returns how many triggers were dropped because a
// cycle was already in flight.
func (o *Orchestrator) DroppedTriggers() uint64 { return o.droppedTriggers.Load() }

// RunCycle is the full trigger-cycle operation, suitable as a
// plc.DetectFunc: acquire the single-inflight lock, retry the whole
// detect+policy pipeline up to MaxRetryCount times. Only the final
// attempt updates counters, persists images, and publishes events;
// intermediate NGs are shown to the operator and discarded. Manual
// triggers call this directly and observe the same busy rule.
func (o *Orchestrator) RunCycle(ctx context.Context) (bool, error) {
	if !o.busy.CompareAndSwap(false, true) {
		o.droppedTriggers.Add(1)
		observability.TriggersTotal.WithLabelValues("dropped_busy").Inc()
		return false, fmt.Errorf("cycle already in flight")
	}
	defer o.busy.Store(false)

	observability.TriggersTotal.WithLabelValues("accepted").Inc()

	maxRetry := o.cfg.MaxRetryCount
	retryInterval := o.cfg.RetryInterval

	var (
		outcome types.CascadeOutcome
		verdict types.DetectionVerdict
		timing  vision.Timing
		frame   types.Image
		lastErr error
	)

	for attempt := 0; attempt <= maxRetry; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(retryInterval):
			}
		}

		f, err := o.acquireFrame(ctx)
		if err != nil {
			lastErr = err
			slog.Error("frame acquisition failed", "error", err)
			verdict = types.DetectionVerdict{Passed: false, Reason: "frame acquisition failed"}
			continue
		}
		frame = f

		cascadeOutcome, cascadeTiming := o.manager.InferWithFallback(frame, o.cfg.RunConfig, o.cfg.TargetLabel)
		outcome = cascadeOutcome
		timing = cascadeTiming

		verdict = policy.Evaluate(outcome.Detections, outcome.UsedLabels, o.cfg.TargetLabel, o.cfg.TargetCount)
		lastErr = nil

		if verdict.Passed {
			break
		}
		if attempt < maxRetry {
			slog.Info("cycle NG, retrying", "attempt", attempt, "reason", verdict.Reason)
			// An intermediate NG shows the operator the result image
			// but does not persist or count anything; only the final
			// verdict does that.
			o.pushImage(frame)
			if o.ui != nil {
				o.ui.Log(fmt.Sprintf("retry %d/%d: %s", attempt+1, maxRetry, verdict.Reason), "info")
			}
		}
	}

	o.finalizeCycle(ctx, frame, outcome, verdict, timing)
	return verdict.Passed, lastErr
}

// acquireFrame takes the latest frame off the handoff, or falls back
// to an on-demand capture if none is pending (e.g. for the manual
// trigger path, or a producer that hasn't published since startup).
func (o *Orchestrator) acquireFrame(ctx context.Context) (types.Image, error) {
	if img, ok := o.handoff.Take(); ok {
		return img, nil
	}
	if o.cameraAdapter == nil {
		return types.Image{}, fmt.Errorf("no frame available and no camera adapter configured")
	}
	acquireCtx, cancel := context.WithTimeout(ctx, camera.AcquireTimeout)
	defer cancel()
	img, err := o.cameraAdapter.CaptureOnce(acquireCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Image{}, fmt.Errorf("capture within %v: %w", camera.AcquireTimeout, camera.ErrFrameTimeout)
	}
	return img, err
}

// pushImage encodes the cycle's frame and pushes it to the UI
// collaborator; failures only cost the operator a preview.
func (o *Orchestrator) pushImage(frame types.Image) {
	if o.ui == nil || frame.Width == 0 || frame.Height == 0 {
		return
	}
	data, err := persistence.EncodeJPEG(frame, o.cfg.JPEGQuality)
	if err != nil {
		slog.Warn("encode result image for ui", "error", err)
		return
	}
	o.ui.UpdateImage("image/jpeg", data)
}

// finalizeCycle runs once per trigger cycle, after all retries are
// exhausted or an early pass: updates metrics/counters, persists the
// image, appends the detection log, records the ledger row, and
// publishes the CycleCompleted event, all corresponding to the same
// final verdict.
func (o *Orchestrator) finalizeCycle(ctx context.Context, frame types.Image, outcome types.CascadeOutcome, verdict types.DetectionVerdict, timing vision.Timing) {
	now := time.Now()

	metrics := types.Metrics{
		PreprocessMS:   timing.PreprocessMS,
		InferenceMS:    timing.InferenceMS,
		PostprocessMS:  timing.PostprocessMS,
		DetectionCount: len(outcome.Detections),
	}

	o.totalCycles.Add(1)
	if verdict.Passed {
		o.okCycles.Add(1)
	} else {
		o.ngCycles.Add(1)
	}

	if o.recorder != nil {
		o.recorder.Record(metrics, o.ui)
	}

	var imagePath string
	if frame.Width > 0 && frame.Height > 0 && o.queue != nil {
		imagePath = persistence.ImagePath(o.cfg.StorageRoot, verdict.Passed, now)
		o.queue.Enqueue(persistence.SaveRequest{
			Image:     frame,
			AbsPath:   imagePath,
			MirrorKey: persistence.MirrorKey(verdict.Passed, now),
			Quality:   o.cfg.JPEGQuality,
		})
	}

	if o.detectionLog != nil {
		if err := o.detectionLog.Write(now, verdict, outcome.UsedLabels, outcome.Detections); err != nil {
			slog.Error("write detection log", "error", err)
		}
	}

	observability.CyclesTotal.WithLabelValues(verdictLabel(verdict.Passed)).Inc()
	observability.DetectionsTotal.WithLabelValues(outcome.UsedRole.String()).Add(float64(len(outcome.Detections)))

	o.pushImage(frame)
	if o.ui != nil {
		o.ui.UpdateResult(verdict.Passed)
		o.ui.UpdateStats(int(o.totalCycles.Load()), int(o.okCycles.Load()), int(o.ngCycles.Load()))
	}

	primaryHit, aux1Hit, aux2Hit, _ := o.manager.Stats()

	if o.stats != nil {
		rec := storage.CycleRecord{
			ID:              uuid.New(),
			Timestamp:       now,
			Passed:          verdict.Passed,
			TargetCountSeen: verdict.TargetCountSeen,
			TotalDetections: verdict.TotalDetections,
			Reason:          verdict.Reason,
			UsedRole:        outcome.UsedRole.String(),
			UsedModelName:   outcome.UsedModelName,
			WasFallback:     outcome.WasFallback,
			PreprocessMS:    metrics.PreprocessMS,
			InferenceMS:     metrics.InferenceMS,
			PostprocessMS:   metrics.PostprocessMS,
			TotalMS:         metrics.TotalMS(),
			FPS:             metrics.FPS(),
			PrimaryHit:      int64(primaryHit),
			Aux1Hit:         int64(aux1Hit),
			Aux2Hit:         int64(aux2Hit),
			ImagePath:       imagePath,
		}
		if err := o.stats.RecordCycle(ctx, rec); err != nil {
			slog.Error("record cycle statistics", "error", err)
		}
	}

	if o.bus != nil {
		ev := eventbus.CycleCompleted{
			ID:        uuid.New(),
			Timestamp: now,
			Verdict:   verdict,
			Outcome:   outcome,
			Metrics:   metrics,
			ImagePath: imagePath,
		}
		if err := o.bus.PublishCycle(ctx, ev); err != nil {
			slog.Error("publish cycle event", "error", err)
		}
	}
}

func verdictLabel(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
