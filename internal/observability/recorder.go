package observability

import (
	"sync"
	"time"

	"github.com/your-org/inspectline/internal/types"
)

// Stopwatch captures a monotonic-clock duration for one pipeline
// stage.
type Stopwatch struct {
	start time.Time
}

// Start begins timing a stage.
func Start() Stopwatch { return Stopwatch{start: time.Now()} }

// ElapsedMS returns the elapsed time in milliseconds since Start.
func (s Stopwatch) ElapsedMS() float64 {
	return float64(time.Since(s.start)) / float64(time.Millisecond)
}

// MetricsPublisher is the operator UI's metrics-facing slice. The
// Recorder calls it once per cycle.
type MetricsPublisher interface {
	UpdateMetrics(types.Metrics)
}

// Recorder accumulates one cycle's per-stage timings, derives
// total/fps, snapshots atomically, and publishes to Prometheus and to
// the UI collaborator.
type Recorder struct {
	mu   sync.Mutex
	last types.Metrics
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record stores one cycle's metrics, updates the Prometheus gauges/
// histograms, and (if non-nil) publishes the snapshot to the UI.
func (r *Recorder) Record(m types.Metrics, publisher MetricsPublisher) {
	r.mu.Lock()
	r.last = m
	r.mu.Unlock()

	StageDuration.WithLabelValues("preprocess").Observe(m.PreprocessMS)
	StageDuration.WithLabelValues("inference").Observe(m.InferenceMS)
	StageDuration.WithLabelValues("postprocess").Observe(m.PostprocessMS)
	FPS.Set(m.FPS())

	if publisher != nil {
		publisher.UpdateMetrics(m)
	}
}

// Snapshot returns the most recently recorded cycle's metrics.
func (r *Recorder) Snapshot() types.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
