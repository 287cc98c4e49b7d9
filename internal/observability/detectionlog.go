package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/your-org/inspectline/internal/types"
)

// DetectionLogWriter appends one entry per trigger cycle to the
// DetectionLogs flat-file layout:
// <storage_root>/Logs/DetectionLogs/YYYY-MM-DD/YYYYMMDDHH.txt, entries
// separated by a blank line. This file log is what line operators
// audit; it exists independently of the process slog output.
type DetectionLogWriter struct {
	mu   sync.Mutex
	root string
}

// NewDetectionLogWriter roots the writer at storageRoot, the same
// root used for image persistence.
func NewDetectionLogWriter(storageRoot string) *DetectionLogWriter {
	return &DetectionLogWriter{root: storageRoot}
}

// Write appends one log entry for the given timestamp, verdict, and
// detections, creating the date directory and hour file as needed.
func (w *DetectionLogWriter) Write(ts time.Time, verdict types.DetectionVerdict, labels []string, detections []types.Detection) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.root, "Logs", "DetectionLogs", ts.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create detection log dir: %w", err)
	}

	path := filepath.Join(dir, ts.Format("2006010215")+".txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open detection log %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	status := "FAIL"
	if verdict.Passed {
		status = "PASS"
	}
	fmt.Fprintf(&b, "%s %s %s\n", ts.Format(time.RFC3339), status, verdict.Reason)
	for _, d := range detections {
		label := "?"
		if d.ClassID >= 0 && d.ClassID < len(labels) {
			label = labels[d.ClassID]
		}
		fmt.Fprintf(&b, "  %s %.3f\n", label, d.Confidence)
	}
	b.WriteString("\n")

	_, err = f.WriteString(b.String())
	return err
}
