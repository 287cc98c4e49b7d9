package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/your-org/inspectline/internal/types"
)

func TestDetectionLogWrite(t *testing.T) {
	root := t.TempDir()
	w := NewDetectionLogWriter(root)

	ts := time.Date(2026, 8, 2, 14, 30, 0, 0, time.UTC)
	verdict := types.DetectionVerdict{Passed: true, TargetCountSeen: 2, TotalDetections: 2, Reason: "expected 2 of screw, saw 2"}
	dets := []types.Detection{
		{ClassID: 0, Confidence: 0.91},
		{ClassID: 0, Confidence: 0.87},
	}

	if err := w.Write(ts, verdict, []string{"screw"}, dets); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path := filepath.Join(root, "Logs", "DetectionLogs", "2026-08-02", "2026080214.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, "PASS") {
		t.Error("log entry missing verdict")
	}
	if !strings.Contains(text, "screw 0.910") {
		t.Errorf("log entry missing detection line:\n%s", text)
	}
	if !strings.HasSuffix(text, "\n\n") {
		t.Error("log entry not terminated by a blank line")
	}
}

func TestDetectionLogAppendsEntries(t *testing.T) {
	root := t.TempDir()
	w := NewDetectionLogWriter(root)
	ts := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := w.Write(ts, types.DetectionVerdict{Passed: false, Reason: "expected 1 of bolt, saw 0"}, nil, nil); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(root, "Logs", "DetectionLogs", "2026-08-02", "2026080209.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "FAIL"); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}

	// Entries are separated by a blank line.
	entries := strings.Split(strings.TrimRight(string(data), "\n"), "\n\n")
	if len(entries) != 2 {
		t.Errorf("blank-line-separated entries = %d, want 2", len(entries))
	}
}

func TestDetectionLogUnknownLabel(t *testing.T) {
	root := t.TempDir()
	w := NewDetectionLogWriter(root)
	ts := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	err := w.Write(ts, types.DetectionVerdict{Reason: "x"}, []string{"screw"}, []types.Detection{{ClassID: 9, Confidence: 0.5}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(root, "Logs", "DetectionLogs", "2026-08-02", "2026080209.txt"))
	if !strings.Contains(string(data), "? 0.500") {
		t.Errorf("out-of-range class not rendered as ?:\n%s", data)
	}
}
