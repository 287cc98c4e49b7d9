package plc

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/your-org/inspectline/internal/observability"
)

// State is one of the PLC trigger state machine's states.
type State int32

const (
	StateIdle State = iota
	StateTriggered
	StateDetecting
	StateRetrying
	StateWritingResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggered:
		return "triggered"
	case StateDetecting:
		return "detecting"
	case StateRetrying:
		return "retrying"
	case StateWritingResult:
		return "writing_result"
	default:
		return "unknown"
	}
}

// DetectFunc runs one full trigger cycle's detection, including any
// internal retries, and returns the final pass/fail verdict. Retry
// logic lives in the Orchestrator, not here, because retrying means
// re-running the whole detection pipeline, not re-issuing PLC reads.
type DetectFunc func(ctx context.Context) (passed bool, err error)

// Controller is a protocol-agnostic state machine that polls a
// trigger register, delegates detection to a DetectFunc, and writes
// the verdict back.
type Controller struct {
	adapter      Adapter
	triggerAddr  string
	resultAddr   string
	pollInterval time.Duration
	triggerDelay time.Duration
	detect       DetectFunc

	state atomic.Int32
}

// NewController builds a controller. pollMS and triggerDelayMS
// default to 500 and 800 when zero.
func NewController(adapter Adapter, triggerAddr, resultAddr string, pollMS, triggerDelayMS int, detect DetectFunc) *Controller {
	if pollMS <= 0 {
		pollMS = 500
	}
	if triggerDelayMS <= 0 {
		triggerDelayMS = 800
	}
	return &Controller{
		adapter:      adapter,
		triggerAddr:  triggerAddr,
		resultAddr:   resultAddr,
		pollInterval: time.Duration(pollMS) * time.Millisecond,
		triggerDelay: time.Duration(triggerDelayMS) * time.Millisecond,
		detect:       detect,
	}
}

// State returns the controller's current state, for tests and the UI
// collaborator.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Run drives the state machine until ctx is canceled. Cancellation is
// checked at every state boundary; in-flight read/write calls are not
// forcibly aborted, but no new cycle starts after cancellation.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.adapter.Connect(ctx); err != nil {
		slog.Warn("plc initial connect failed", "error", err)
	}
	defer c.adapter.Disconnect()

	for {
		c.setState(StateIdle)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}

		value, ok, err := c.adapter.ReadInt16(ctx, c.triggerAddr)
		if err != nil {
			c.handleTransportError(ctx)
			continue
		}
		if !ok || value != 1 {
			continue
		}

		if _, err := c.adapter.WriteInt16(ctx, c.triggerAddr, 0); err != nil {
			slog.Error("plc write trigger reset failed", "error", err)
			continue
		}

		c.setState(StateTriggered)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.triggerDelay):
		}

		c.setState(StateDetecting)
		passed, err := c.detect(ctx)
		if err != nil {
			slog.Error("detection cycle failed", "error", err)
			passed = false
		}

		result := int16(0)
		if passed {
			result = 1
		}

		c.setState(StateWritingResult)
		if _, err := c.adapter.WriteInt16(ctx, c.resultAddr, result); err != nil {
			slog.Error("plc write result failed", "error", err)
		}
	}
}

// handleTransportError runs exponential-then-capped reconnect
// backoff: up to three attempts before surfacing a disconnect event.
// During backoff the trigger register is not polled, so triggers
// landing in this window are dropped.
func (c *Controller) handleTransportError(ctx context.Context) {
	const maxAttempts = 3
	const capDelay = 8 * time.Second

	delay := 500 * time.Millisecond
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := c.adapter.Connect(ctx); err == nil {
			slog.Info("plc reconnected", "attempt", attempt)
			return
		}

		delay *= 2
		if delay > capDelay {
			delay = capDelay
		}
	}

	observability.PLCDisconnects.Inc()
	slog.Error("plc disconnect event surfaced after exhausting reconnect attempts", "attempts", maxAttempts)
}
