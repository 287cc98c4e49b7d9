// Package dto holds the JSON wire shapes the HTTP/WebSocket surface
// exposes to the operator UI.
package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/inspectline/internal/types"
)

// WSEventType tags what a WebSocket push message carries.
type WSEventType string

const (
	WSEventStats   WSEventType = "stats"
	WSEventResult  WSEventType = "result"
	WSEventImage   WSEventType = "image"
	WSEventMetrics WSEventType = "metrics"
	WSEventLog     WSEventType = "log"
)

// WSEvent is the envelope every push message uses.
type WSEvent struct {
	Type      WSEventType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// StatsPayload carries the lifetime total/ok/ng counters.
type StatsPayload struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	NG    int `json:"ng"`
}

// ResultPayload carries the latest cycle verdict.
type ResultPayload struct {
	Passed bool `json:"passed"`
}

// ImagePayload announces a new result image by its content type and
// byte count; the encoded image bytes are not part of any push.
type ImagePayload struct {
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`
}

// MetricsPayload carries one cycle's timing/fps snapshot.
type MetricsPayload struct {
	PreprocessMS   float64 `json:"preprocess_ms"`
	InferenceMS    float64 `json:"inference_ms"`
	PostprocessMS  float64 `json:"postprocess_ms"`
	TotalMS        float64 `json:"total_ms"`
	FPS            float64 `json:"fps"`
	DetectionCount int     `json:"detection_count"`
}

func MetricsPayloadFrom(m types.Metrics) MetricsPayload {
	return MetricsPayload{
		PreprocessMS:   m.PreprocessMS,
		InferenceMS:    m.InferenceMS,
		PostprocessMS:  m.PostprocessMS,
		TotalMS:        m.TotalMS(),
		FPS:            m.FPS(),
		DetectionCount: m.DetectionCount,
	}
}

// LogPayload carries an operator-visible log line.
type LogPayload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// CycleDTO is the JSON shape returned by the read-only cycle-history
// endpoint.
type CycleDTO struct {
	ID              uuid.UUID `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Passed          bool      `json:"passed"`
	TargetCountSeen int       `json:"target_count_seen"`
	TotalDetections int       `json:"total_detections"`
	Reason          string    `json:"reason"`
	UsedRole        string    `json:"used_role"`
	UsedModelName   string    `json:"used_model_name"`
	WasFallback     bool      `json:"was_fallback"`
	TotalMS         float64   `json:"total_ms"`
	FPS             float64   `json:"fps"`
	ImagePath       string    `json:"image_path"`
}
