package vision

import (
	"errors"

	"github.com/your-org/inspectline/internal/types"
)

// Detection is an alias for the shared detection record: the vision
// package decodes, filters and returns these; policy and persistence
// consume them without a conversion step.
type Detection = types.Detection

// Keypoint is an alias for the shared pose-landmark record.
type Keypoint = types.Keypoint

// Sentinel error kinds. Compare with errors.Is; wrapped with context
// via fmt.Errorf("...: %w", ErrX) at the call site.
var (
	ErrInvalidImage        = errors.New("invalid image")
	ErrUnsupportedChannels = errors.New("unsupported channel count")
	ErrModelLoad           = errors.New("model load error")
	ErrBackend             = errors.New("inference backend error")
	ErrInvalidOutput       = errors.New("invalid model output")
)
