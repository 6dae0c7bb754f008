package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes the message referenced by a task.
type Handler func(ctx context.Context, messageID int64) error

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	Queue         string
	Concurrency   int
	PopTimeout    time.Duration
	MaxDeliveries int
}

// Consumer pops task envelopes and runs the handler registered for each task
// name. A failed task is pushed back with attempt+1 until MaxDeliveries, then
// dropped.
type Consumer struct {
	broker   Broker
	cfg      ConsumerConfig
	log      *slog.Logger
	mu       sync.RWMutex
	handlers map[string]Handler

	// retryDelay is the pause after a broker error.
	retryDelay time.Duration
}

func NewConsumer(broker Broker, cfg ConsumerConfig, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 1
	}
	return &Consumer{
		broker:     broker,
		cfg:        cfg,
		log:        log.With("component", "consumer", "queue", cfg.Queue),
		handlers:   make(map[string]Handler),
		retryDelay: time.Second,
	}
}

// Register binds a handler to a task name. Each name takes one handler.
func (c *Consumer) Register(task string, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.handlers[task]; exists {
		return fmt.Errorf("handler for task %q already registered", task)
	}
	c.handlers[task] = h
	return nil
}

func (c *Consumer) handler(task string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[task]
	return h, ok
}

// Run starts the worker goroutines and blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("Starting queue consumers", "concurrency", c.cfg.Concurrency)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			c.loop(gCtx, worker)
			return nil
		})
	}

	err := g.Wait()
	c.log.Info("Queue consumers stopped")
	return err
}

func (c *Consumer) loop(ctx context.Context, worker int) {
	log := c.log.With("worker", worker)
	for ctx.Err() == nil {
		payload, err := c.broker.Pop(ctx, c.cfg.Queue, c.cfg.PopTimeout)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Broker pop failed", "error", err)
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		c.Process(ctx, payload)
	}
}

// Process handles one raw payload. It is exported for synchronous use in tests.
func (c *Consumer) Process(ctx context.Context, payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		c.log.Error("Dropping malformed task", "error", err)
		return
	}

	log := c.log.With("task_id", env.ID, "task", env.Task, "message_id", env.MessageID, "attempt", env.Attempt)

	h, ok := c.handler(env.Task)
	if !ok {
		log.Error("Dropping task without registered handler")
		return
	}

	start := time.Now()
	if err := h(ctx, env.MessageID); err != nil {
		c.redeliver(ctx, log, env, err)
		return
	}
	log.Debug("Task completed", "duration", time.Since(start))
}

func (c *Consumer) redeliver(ctx context.Context, log *slog.Logger, env Envelope, cause error) {
	if env.Attempt >= c.cfg.MaxDeliveries {
		log.Error("Task failed, delivery limit reached; dropping", "max_deliveries", c.cfg.MaxDeliveries, "error", cause)
		return
	}

	env.Attempt++
	payload, err := env.Encode()
	if err != nil {
		log.Error("Failed to encode redelivery", "error", err)
		return
	}

	// The task must survive shutdown, so the push ignores cancellation.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.broker.Push(pushCtx, c.cfg.Queue, payload); err != nil {
		log.Error("Failed to requeue task", "error", err, "cause", cause)
		return
	}
	log.Warn("Task failed, requeued", "next_attempt", env.Attempt, "error", cause)
}
