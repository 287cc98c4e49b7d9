package camera

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/your-org/inspectline/internal/types"
)

// AcquireTimeout bounds a single on-demand frame acquisition.
const AcquireTimeout = 3000 * time.Millisecond

// ErrFrameTimeout is surfaced when a capture does not complete within
// AcquireTimeout.
var ErrFrameTimeout = fmt.Errorf("frame acquisition timed out")

// Adapter is the camera collaborator interface: vendor SDK adapters
// implement this, and the controller depends only on the interface.
type Adapter interface {
	// Start begins producing frames to the given handoff from a
	// dedicated goroutine, until the context is canceled.
	Start(ctx context.Context, handoff *FrameHandoff) error
	Stop()
	// CaptureOnce synchronously acquires a single frame on demand,
	// for the manual-trigger path.
	CaptureOnce(ctx context.Context) (types.Image, error)
}

// SyntheticAdapter is a deterministic synthetic frame generator
// standing in for a vendor camera SDK. It produces flat mid-gray
// frames at a fixed rate, sufficient to exercise FrameHandoff, the
// Orchestrator, and the manual-trigger path end to end without real
// hardware.
type SyntheticAdapter struct {
	Width, Height int
	Channels      int
	FrameInterval time.Duration

	stop   chan struct{}
	frameN atomic.Uint64
}

// NewSyntheticAdapter builds a generator producing Channels-channel
// images of the given extent every interval.
func NewSyntheticAdapter(width, height, channels int, interval time.Duration) *SyntheticAdapter {
	return &SyntheticAdapter{
		Width:         width,
		Height:        height,
		Channels:      channels,
		FrameInterval: interval,
		stop:          make(chan struct{}),
	}
}

// Start launches the producer goroutine, publishing a new synthetic
// frame to handoff every FrameInterval until ctx is canceled or Stop
// is called.
func (a *SyntheticAdapter) Start(ctx context.Context, handoff *FrameHandoff) error {
	go func() {
		ticker := time.NewTicker(a.FrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case <-ticker.C:
				handoff.Publish(a.frame())
			}
		}
	}()
	return nil
}

// Stop halts the producer goroutine.
func (a *SyntheticAdapter) Stop() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
}

// CaptureOnce synchronously produces one synthetic frame; used by the
// manual-trigger path which does not want to wait on the periodic
// producer.
func (a *SyntheticAdapter) CaptureOnce(ctx context.Context) (types.Image, error) {
	select {
	case <-ctx.Done():
		return types.Image{}, ctx.Err()
	default:
	}
	return a.frame(), nil
}

// frame builds one flat mid-gray image, varying brightness slightly
// by frame count so successive frames are distinguishable in logs.
func (a *SyntheticAdapter) frame() types.Image {
	n := a.frameN.Add(1)
	fill := byte(96 + (n % 32))
	pix := make([]byte, a.Width*a.Height*a.Channels)
	for i := range pix {
		pix[i] = fill
	}
	return types.Image{Width: a.Width, Height: a.Height, Channels: a.Channels, Pix: pix}
}
