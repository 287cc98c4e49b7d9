package observability

import (
	"testing"

	"github.com/your-org/inspectline/internal/types"
)

type capturedMetrics struct {
	last types.Metrics
	n    int
}

func (c *capturedMetrics) UpdateMetrics(m types.Metrics) {
	c.last = m
	c.n++
}

func TestRecorderRecordAndSnapshot(t *testing.T) {
	r := NewRecorder()
	pub := &capturedMetrics{}

	m := types.Metrics{PreprocessMS: 2, InferenceMS: 10, PostprocessMS: 3, DetectionCount: 4}
	r.Record(m, pub)

	if pub.n != 1 {
		t.Errorf("publisher called %d times, want 1", pub.n)
	}
	if pub.last != m {
		t.Errorf("published %+v, want %+v", pub.last, m)
	}

	snap := r.Snapshot()
	if snap != m {
		t.Errorf("snapshot = %+v, want %+v", snap, m)
	}
	if snap.TotalMS() != 15 {
		t.Errorf("total = %v, want 15", snap.TotalMS())
	}
}

func TestRecorderNilPublisher(t *testing.T) {
	r := NewRecorder()
	r.Record(types.Metrics{InferenceMS: 1}, nil)
	if r.Snapshot().InferenceMS != 1 {
		t.Error("snapshot not updated")
	}
}
