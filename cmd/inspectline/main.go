// Command inspectline is the controller binary: it wires the camera
// adapter, model cascade, policy engine, PLC controller, persistence
// queue, statistics ledger, event bus, and operator HTTP/WebSocket
// surface together and runs until signaled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/inspectline/internal/api"
	"github.com/your-org/inspectline/internal/api/ws"
	"github.com/your-org/inspectline/internal/camera"
	"github.com/your-org/inspectline/internal/config"
	"github.com/your-org/inspectline/internal/eventbus"
	"github.com/your-org/inspectline/internal/observability"
	"github.com/your-org/inspectline/internal/persistence"
	"github.com/your-org/inspectline/internal/plc"
	"github.com/your-org/inspectline/internal/storage"
	"github.com/your-org/inspectline/internal/types"
	"github.com/your-org/inspectline/internal/vision"

	"github.com/your-org/inspectline/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting inspectline controller", "port", cfg.Server.Port, "cpu_cores", runtime.NumCPU())

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	manager := vision.NewModelManager(cfg.Fallback.EnableMultiModel)
	defer manager.Close()

	if err := loadPrimary(manager, cfg); err != nil {
		slog.Error("load primary model", "error", err)
		os.Exit(1)
	}
	if cfg.Fallback.Aux1Path != "" {
		if err := loadAuxiliary(manager.LoadAuxiliary1, cfg, cfg.Fallback.Aux1Path, cfg.Fallback.Aux1LabelsPath); err != nil {
			slog.Warn("load auxiliary1 model", "error", err)
		}
	}
	if cfg.Fallback.Aux2Path != "" {
		if err := loadAuxiliary(manager.LoadAuxiliary2, cfg, cfg.Fallback.Aux2Path, cfg.Fallback.Aux2LabelsPath); err != nil {
			slog.Warn("load auxiliary2 model", "error", err)
		}
	}
	manager.SetTaskMode(taskTypeFromConfig(cfg.Detection.TaskType))

	var db storage.StatsStore
	if cfg.Database.Host != "" {
		pg, err := storage.NewPostgresStore(cfg.Database)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg
	}

	var minioStore *storage.MinIOStore
	if cfg.MinIO.Enabled {
		minioStore, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
	}

	var bus *eventbus.Bus
	if cfg.NATS.URL != "" {
		bus, err = eventbus.NewBus(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		if err := bus.EnsureStreams(context.Background()); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
	}

	hub := ws.NewHub()
	go hub.Run()

	var mirror persistence.Mirror
	if minioStore != nil {
		mirror = minioStore
	}
	queue := persistence.NewQueue(cfg.Storage.QueueDepth, mirror)

	handoff := camera.NewFrameHandoff()
	cameraAdapter := camera.NewSyntheticAdapter(1280, 720, 3, 50*time.Millisecond)

	recorder := observability.NewRecorder()
	detectionLog := observability.NewDetectionLogWriter(cfg.Storage.StorageRoot)

	orchCfg := orchestrator.Config{
		TargetLabel:   cfg.Policy.TargetLabel,
		TargetCount:   cfg.Policy.TargetCount,
		MaxRetryCount: cfg.Policy.MaxRetryCount,
		RetryInterval: time.Duration(cfg.Policy.RetryIntervalMS) * time.Millisecond,
		StorageRoot:   cfg.Storage.StorageRoot,
		JPEGQuality:   cfg.Storage.JPEGQuality,
		RunConfig: vision.RunConfig{
			Confidence:    float32(cfg.Detection.Confidence),
			IoU:           float32(cfg.Detection.IoU),
			GlobalIoU:     cfg.Detection.GlobalIoU,
			KeypointCount: cfg.Detection.KeypointCount,
		},
	}
	orch := orchestrator.New(orchCfg, handoff, cameraAdapter, manager, queue, recorder, detectionLog, db, bus, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cameraAdapter.Start(ctx, handoff); err != nil {
		slog.Error("start camera adapter", "error", err)
		os.Exit(1)
	}
	defer cameraAdapter.Stop()

	go queue.Run(ctx)

	sweeper := persistence.NewRetentionSweeper(cfg.Storage.StorageRoot, cfg.Storage.RetainDays)
	if minioStore != nil {
		sweeper.Pruner = minioStore
	}
	stop := make(chan struct{})
	go sweeper.RunEvery(24*time.Hour, stop)
	defer close(stop)

	plcAdapter := plc.NewSimulatedAdapter()
	controller := plc.NewController(plcAdapter, cfg.PLC.TriggerAddress, cfg.PLC.ResultAddress, cfg.PLC.PollMS, cfg.PLC.TriggerDelayMS, orch.RunCycle)
	plcDone := make(chan struct{})
	go func() {
		defer close(plcDone)
		if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("plc controller stopped", "error", err)
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		APIKey: cfg.Server.APIKey,
		Config: cfg,
		DB:     db,
		MinIO:  minioStore,
		Bus:    bus,
		Hub:    hub,
		Orch:   orch,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("inspectline HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown order: cancel the PLC loop so no new cycle starts,
	// drain any in-flight cycle, flush the persistence worker with a
	// bounded timeout, release model sessions, release the camera.
	slog.Info("shutting down inspectline controller...")
	cancel()
	<-plcDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	queue.Shutdown(5 * time.Second)
	manager.Close()
	cameraAdapter.Stop()

	slog.Info("inspectline controller stopped")
}

func loadPrimary(manager *vision.ModelManager, cfg *config.Config) error {
	if cfg.Detection.ModelPath == "" {
		return fmt.Errorf("detection.model_path is required")
	}
	session, err := buildSession(cfg.Detection.ModelPath, cfg.Detection.LabelsPath, cfg)
	if err != nil {
		return err
	}
	manager.LoadPrimary(session)
	return nil
}

func loadAuxiliary(load func(vision.InferenceSession), cfg *config.Config, modelPath, labelsPath string) error {
	session, err := buildSession(modelPath, labelsPath, cfg)
	if err != nil {
		return err
	}
	load(session)
	return nil
}

func buildSession(modelPath, labelsPath string, cfg *config.Config) (*vision.Session, error) {
	var labels []string
	if labelsPath != "" {
		var err error
		labels, err = vision.LoadLabels(labelsPath)
		if err != nil {
			return nil, err
		}
	}

	task := taskTypeFromConfig(cfg.Detection.TaskType)
	outputs := vision.BuildOutputSpecs(task, cfg.Detection.InputW, cfg.Detection.InputH, len(labels), cfg.Detection.KeypointCount)

	hint := vision.DeviceHint{Kind: vision.DeviceCPU}
	if cfg.Detection.EnableGPU {
		hint = vision.DeviceHint{Kind: vision.DeviceGPU, GPUIndex: cfg.Detection.GPUIndex}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}

	return vision.NewSession(modelPath, task, cfg.Detection.ModelVersion, cfg.Detection.InputName, cfg.Detection.InputW, cfg.Detection.InputH, outputs, labels, hint, opts)
}

func taskTypeFromConfig(t config.TaskType) types.TaskType {
	switch t {
	case config.TaskClassify:
		return types.TaskClassify
	case config.TaskSegment:
		return types.TaskSegment
	case config.TaskPose:
		return types.TaskPose
	case config.TaskOBB:
		return types.TaskOBB
	default:
		return types.TaskDetect
	}
}

func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
