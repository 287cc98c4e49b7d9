// Package eventbus publishes one event per completed trigger cycle to
// NATS JetStream and offers a durable consumer for those events.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/inspectline/internal/types"
)

const (
	CyclesStreamName  = "CYCLES"
	CyclesSubjectBase = "cycles"
)

// CycleCompleted is published once per trigger cycle by the
// Orchestrator's finalize step, after the image is enqueued for
// persistence and before the PLC controller writes the result
// register; it carries the same final verdict that is then written.
type CycleCompleted struct {
	ID        uuid.UUID             `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Verdict   types.DetectionVerdict `json:"verdict"`
	Outcome   types.CascadeOutcome  `json:"outcome"`
	Metrics   types.Metrics         `json:"metrics"`
	ImagePath string                `json:"image_path"`
}

// Bus owns the NATS connection and JetStream context for both
// publishing and consuming CycleCompleted events.
type Bus struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewBus connects to NATS with retry-on-failed-connect, infinite
// reconnects and a 2s backoff.
func NewBus(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Bus{nc: nc, js: js}, nil
}

// EnsureStreams creates the CYCLES stream if absent, retrying up to
// 30 times (1s apart) to ride out NATS startup delay.
func (b *Bus) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        CyclesStreamName,
		Subjects:    []string{CyclesSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     1_000_000,
		Storage:     jetstream.FileStorage,
		Description: "Completed inspection trigger cycles",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := b.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// PublishCycle publishes one completed cycle.
func (b *Bus) PublishCycle(ctx context.Context, ev CycleCompleted) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal cycle event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", CyclesSubjectBase, ev.ID)
	_, err = b.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish cycle event: %w", err)
	}
	return nil
}

// ConsumeCycles starts a durable consumer delivering new cycle events
// to handler.
func (b *Bus) ConsumeCycles(ctx context.Context, consumerName string, handler func(CycleCompleted) error) error {
	stream, err := b.js.Stream(ctx, CyclesStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", CyclesStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: CyclesSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var ev CycleCompleted
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					slog.Error("unmarshal cycle event", "error", err)
					_ = msg.Ack()
					continue
				}
				if err := handler(ev); err != nil {
					slog.Error("handle cycle event", "error", err)
					_ = msg.Nak()
					continue
				}
				_ = msg.Ack()
			}
		}
	}()

	slog.Info("cycle consumer started", "consumer", consumerName)
	return nil
}

// Ping reports whether the underlying NATS connection is up.
func (b *Bus) Ping() error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close closes the NATS connection.
func (b *Bus) Close() {
	b.nc.Close()
}
