// Package policy decides pass/fail for one trigger cycle: given the
// cascade's detections, a target label and a target count, the cycle
// passes when exactly the configured number of target-label
// detections was seen.
package policy

import (
	"fmt"
	"strings"

	"github.com/your-org/inspectline/internal/types"
)

// Evaluate computes the seen-count and the pass/fail verdict. An
// empty targetLabel means any detection counts; label comparison is
// case-insensitive.
func Evaluate(detections []types.Detection, labels []string, targetLabel string, targetCount int) types.DetectionVerdict {
	var seen int
	if targetLabel == "" {
		seen = len(detections)
	} else {
		want := strings.ToLower(targetLabel)
		for _, d := range detections {
			if d.ClassID < 0 || d.ClassID >= len(labels) {
				continue
			}
			if strings.ToLower(labels[d.ClassID]) == want {
				seen++
			}
		}
	}

	passed := seen == targetCount
	label := targetLabel
	if label == "" {
		label = "any"
	}
	reason := fmt.Sprintf("expected %d of %s, saw %d", targetCount, label, seen)

	return types.DetectionVerdict{
		Passed:          passed,
		TargetCountSeen: seen,
		TotalDetections: len(detections),
		Reason:          reason,
	}
}
