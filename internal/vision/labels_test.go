package vision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/your-org/inspectline/internal/types"
)

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, []byte("screw\nbolt\n\n  washer  \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	want := []string{"screw", "bolt", "washer"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("labels[%d] = %q, want %q", i, labels[i], want[i])
		}
	}
}

func TestLoadLabelsMissingFile(t *testing.T) {
	if _, err := LoadLabels(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("missing labels file did not error")
	}
}

func TestBuildOutputSpecs(t *testing.T) {
	anchors := DefaultAnchorCount(640, 640)
	if anchors != 80*80+40*40+20*20 {
		t.Fatalf("anchor count = %d", anchors)
	}

	specs := BuildOutputSpecs(types.TaskDetect, 640, 640, 3, 0)
	if len(specs) != 1 {
		t.Fatalf("detect specs = %d, want 1", len(specs))
	}
	if specs[0].Shape[0] != 7 || specs[0].Shape[1] != int64(anchors) {
		t.Errorf("detect shape = %v", specs[0].Shape)
	}

	segSpecs := BuildOutputSpecs(types.TaskSegment, 640, 640, 3, 0)
	if len(segSpecs) != 2 {
		t.Fatalf("segment specs = %d, want 2 (main + proto)", len(segSpecs))
	}
	if segSpecs[1].Role != OutputProto {
		t.Error("second segment spec is not the prototype output")
	}
}
