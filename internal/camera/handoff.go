// Package camera holds the latest-frame handoff between the camera
// producer and the inference consumer, the camera adapter interface,
// and a synthetic adapter standing in for vendor SDKs.
package camera

import (
	"sync/atomic"

	"github.com/your-org/inspectline/internal/types"
)

// FrameHandoff is a single-slot latest-wins producer/consumer
// handoff: Publish always succeeds and overwrites any unread frame;
// Take returns the current frame (if any) and empties the slot.
// Neither side ever blocks the other. A lock-free atomic pointer swap
// rather than a channel: a buffered channel of capacity 1 would still
// block a producer racing a concurrent Take.
type FrameHandoff struct {
	slot atomic.Pointer[types.Image]
}

// NewFrameHandoff returns an empty handoff.
func NewFrameHandoff() *FrameHandoff {
	return &FrameHandoff{}
}

// Publish replaces any unread frame with img. The dropped frame (if
// any) is simply released to the garbage collector; Image carries no
// external resource that needs an explicit close.
func (h *FrameHandoff) Publish(img types.Image) {
	h.slot.Store(&img)
}

// Take returns the current frame and clears the slot, or reports ok
// == false if the slot was empty.
func (h *FrameHandoff) Take() (types.Image, bool) {
	p := h.slot.Swap(nil)
	if p == nil {
		return types.Image{}, false
	}
	return *p, true
}
