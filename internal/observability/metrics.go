// Package observability wires the controller's structured logging,
// Prometheus metrics, per-cycle metrics recording, and the
// DetectionLogs flat-file sink together.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TriggersTotal counts every trigger that reaches the Orchestrator,
	// PLC-driven and manual alike, labeled by whether it was accepted
	// or dropped for being busy.
	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspectline",
		Name:      "triggers_total",
		Help:      "Total number of triggers (PLC and manual) received by the orchestrator",
	}, []string{"outcome"})

	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspectline",
		Name:      "cycles_total",
		Help:      "Total number of completed trigger cycles",
	}, []string{"verdict"})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspectline",
		Name:      "detections_total",
		Help:      "Total number of detections produced per cascade role",
	}, []string{"role"})

	CascadeHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspectline",
		Name:      "cascade_hits_total",
		Help:      "Cascade tier hit counts (primary/aux1/aux2)",
	}, []string{"role"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inspectline",
		Name:      "stage_duration_ms",
		Help:      "Duration of each pipeline stage in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"stage"})

	FPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inspectline",
		Name:      "fps",
		Help:      "Derived frames-per-second of the last completed cycle",
	})

	PersistenceQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inspectline",
		Name:      "persistence_queue_depth",
		Help:      "Number of pending image-save requests",
	})

	PersistenceDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inspectline",
		Name:      "persistence_dropped_total",
		Help:      "Number of save requests dropped because the queue was full",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inspectline",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inspectline",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	PLCDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inspectline",
		Name:      "plc_disconnects_total",
		Help:      "Number of times the PLC monitor surfaced a disconnect event",
	})
)
