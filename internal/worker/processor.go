package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"keygate/internal/model"
	"keygate/internal/repository"
)

// UsageSink persists usage entries.
type UsageSink interface {
	RecordUsage(ctx context.Context, event model.UsageEvent) error
}

// UsageWorker listens on the "usage.recorded" NATS topic and appends each
// entry to the usage log.
type UsageWorker struct {
	sink     UsageSink
	natsConn *nats.Conn
}

func NewUsageWorker(sink UsageSink, nc *nats.Conn) *UsageWorker {
	return &UsageWorker{
		sink:     sink,
		natsConn: nc,
	}
}

// Run subscribes to "usage.recorded" and blocks until ctx is cancelled.
func (w *UsageWorker) Run(ctx context.Context) error {
	// Each message goes to one worker in the group, however many API
	// instances are running.
	sub, err := w.natsConn.QueueSubscribe(repository.TopicUsageRecorded, "usage_workers", func(m *nats.Msg) {
		w.handle(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Usage worker is running")

	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscription...")
	return sub.Drain()
}

func (w *UsageWorker) handle(ctx context.Context, data []byte) {
	var event model.UsageEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("worker: failed to unmarshal usage message", "error", err)
		return
	}

	if err := w.sink.RecordUsage(ctx, event); err != nil {
		slog.Error("worker: failed to record usage",
			"endpoint", event.Endpoint,
			"ip", event.IP,
			"error", err,
		)
		return
	}

	slog.Debug("worker: usage recorded", "endpoint", event.Endpoint, "ip", event.IP)
}

// Start implements the infrastructure.Server interface.
func (w *UsageWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *UsageWorker) Stop(ctx context.Context) error {
	return nil
}
