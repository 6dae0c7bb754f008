package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/nexa/internal/metrics"
)

// Dispatcher enqueues message processing tasks. It never waits for the
// task to run.
type Dispatcher struct {
	broker  Broker
	queue   string
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewDispatcher(broker Broker, queue string, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		broker:  broker,
		queue:   queue,
		log:     log.With("component", "dispatcher"),
		metrics: m,
		now:     time.Now,
	}
}

// Dispatch pushes one process_normalized_message task for messageID.
func (d *Dispatcher) Dispatch(ctx context.Context, messageID int64) error {
	env := NewEnvelope(TaskProcessMessage, messageID, d.now())
	err := d.push(ctx, env)
	d.metrics.ObserveDispatch(err)
	if err != nil {
		return err
	}

	d.log.DebugContext(ctx, "Task dispatched", "task_id", env.ID, "message_id", messageID)
	return nil
}

func (d *Dispatcher) push(ctx context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode task envelope: %w", err)
	}
	if err := d.broker.Push(ctx, d.queue, payload); err != nil {
		return fmt.Errorf("failed to dispatch message %d: %w", env.MessageID, err)
	}
	return nil
}
