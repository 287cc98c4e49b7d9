package plc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/inspectline/internal/config"
)

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		protocol config.PLCProtocol
		want     string
	}{
		{config.ProtocolMitsubishiMcAscii, "D555"},
		{config.ProtocolMitsubishiMcBinary, "D555"},
		{config.ProtocolModbusTcp, "555"},
		{config.ProtocolSiemensS7, "DB1.555"},
		{config.ProtocolOmronFins, "D555"},
	}

	for _, tt := range tests {
		t.Run(string(tt.protocol), func(t *testing.T) {
			got, err := FormatAddress(tt.protocol, 555)
			if err != nil {
				t.Fatalf("FormatAddress: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := FormatAddress("Bogus", 1); err == nil {
		t.Error("unknown protocol did not error")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestControllerTriggerCycle(t *testing.T) {
	adapter := NewSimulatedAdapter()

	var detectCalls atomic.Int32
	detect := func(ctx context.Context) (bool, error) {
		detectCalls.Add(1)
		return true, nil
	}

	c := NewController(adapter, "D555", "D556", 10, 1, detect)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	adapter.Set("D555", 1)

	waitFor(t, 2*time.Second, func() bool {
		return adapter.Get("D556") == 1
	})

	if adapter.Get("D555") != 0 {
		t.Errorf("trigger register = %d, want reset to 0", adapter.Get("D555"))
	}
	if detectCalls.Load() != 1 {
		t.Errorf("detect calls = %d, want 1", detectCalls.Load())
	}

	cancel()
	<-done
}

func TestControllerWritesZeroOnNG(t *testing.T) {
	adapter := NewSimulatedAdapter()
	adapter.Set("D556", 9) // sentinel so we can observe the write

	detect := func(ctx context.Context) (bool, error) {
		return false, nil
	}

	c := NewController(adapter, "D555", "D556", 10, 1, detect)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	adapter.Set("D555", 1)
	waitFor(t, 2*time.Second, func() bool {
		return adapter.Get("D556") == 0
	})
}

func TestControllerNoTriggerNoDetect(t *testing.T) {
	adapter := NewSimulatedAdapter()

	var detectCalls atomic.Int32
	detect := func(ctx context.Context) (bool, error) {
		detectCalls.Add(1)
		return true, nil
	}

	c := NewController(adapter, "D555", "D556", 10, 1, detect)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	cancel()

	if detectCalls.Load() != 0 {
		t.Errorf("detect called %d times with no trigger", detectCalls.Load())
	}
}

func TestControllerCancellation(t *testing.T) {
	adapter := NewSimulatedAdapter()
	c := NewController(adapter, "D555", "D556", 10, 1, func(ctx context.Context) (bool, error) {
		return true, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestControllerRecoversFromTransientReadFailure(t *testing.T) {
	adapter := NewSimulatedAdapter()
	adapter.FailNextReads = 1

	c := NewController(adapter, "D555", "D556", 10, 1, func(ctx context.Context) (bool, error) {
		return true, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	adapter.Set("D555", 1)

	// The first read fails and enters backoff (first reconnect delay
	// is 500ms); the trigger set above must still be picked up on the
	// next poll after recovery.
	waitFor(t, 5*time.Second, func() bool {
		return adapter.Get("D556") == 1
	})
}

func TestControllerDefaults(t *testing.T) {
	c := NewController(NewSimulatedAdapter(), "D1", "D2", 0, 0, nil)
	if c.pollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v, want 500ms", c.pollInterval)
	}
	if c.triggerDelay != 800*time.Millisecond {
		t.Errorf("trigger delay = %v, want 800ms", c.triggerDelay)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateIdle:          "idle",
		StateTriggered:     "triggered",
		StateDetecting:     "detecting",
		StateRetrying:      "retrying",
		StateWritingResult: "writing_result",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
