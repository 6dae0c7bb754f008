package personal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edgard/nexa/internal/metrics"
	"github.com/edgard/nexa/internal/outbound"
)

// ListenerSecretHeader authenticates listener deliveries to the backend.
const ListenerSecretHeader = "X-Nexa-Listener-Secret"

// StatusError is a non-2xx response from the backend or the listener.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.Status, e.Body)
}

// ClassifyForward retries transport errors, 429 and 5xx; any other status is fatal.
func ClassifyForward(err error) outbound.Outcome {
	if errors.Is(err, context.Canceled) {
		return outbound.Outcome{Verdict: outbound.Fatal}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status == http.StatusTooManyRequests || statusErr.Status >= 500 {
			return outbound.Outcome{Verdict: outbound.Retry}
		}
		return outbound.Outcome{Verdict: outbound.Fatal}
	}
	return outbound.Outcome{Verdict: outbound.Retry}
}

// ForwarderConfig tunes delivery to the backend webhook.
type ForwarderConfig struct {
	URL       string
	Secret    string
	Timeout   time.Duration
	Step      time.Duration
	Attempts  int
	QueueSize int
}

// Forwarder delivers listener payloads to the backend webhook from a bounded
// queue so the MTProto update loop never blocks on HTTP.
type Forwarder struct {
	cfg     ForwarderConfig
	client  *http.Client
	queue   chan map[string]any
	log     *slog.Logger
	metrics *metrics.Metrics

	// sleep overrides the backoff wait in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewForwarder(cfg ForwarderConfig, log *slog.Logger, m *metrics.Metrics) *Forwarder {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Forwarder{
		cfg:     cfg,
		client:  &http.Client{},
		queue:   make(chan map[string]any, cfg.QueueSize),
		log:     log.With("component", "forwarder"),
		metrics: m,
	}
}

// Enqueue schedules payload for delivery. It returns false and drops the
// payload when the queue is full.
func (f *Forwarder) Enqueue(payload map[string]any) bool {
	select {
	case f.queue <- payload:
		return true
	default:
		f.log.Warn("Forward queue full, dropping event", "message_id", messageID(payload))
		f.metrics.ObserveForward("dropped")
		return false
	}
}

// Run delivers queued payloads until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	f.log.Info("Forwarder started", "backend", f.cfg.URL)
	for {
		select {
		case <-ctx.Done():
			f.log.Info("Forwarder stopped")
			return nil
		case payload := <-f.queue:
			_ = f.Forward(ctx, payload)
		}
	}
}

// Forward posts one payload with retries. Exhaustion is logged and the
// payload discarded.
func (f *Forwarder) Forward(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		f.metrics.ObserveForward("failed")
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	policy := outbound.Policy{
		Name:     "listener_forward",
		Attempts: f.cfg.Attempts,
		Backoff:  outbound.Linear{Step: f.cfg.Step},
		Classify: ClassifyForward,
		Sleep:    f.sleep,
		Logger:   f.log,
	}

	id := messageID(payload)
	status, _, err := outbound.Do(ctx, policy, []string{f.cfg.URL}, func(ctx context.Context, url string) (int, error) {
		return f.post(ctx, url, body)
	})
	if err != nil {
		f.log.ErrorContext(ctx, "Giving up forwarding event", "message_id", id, "error", err)
		f.metrics.ObserveForward("failed")
		return err
	}

	f.log.InfoContext(ctx, "Forwarded event to backend", "message_id", id, "status", status)
	f.metrics.ObserveForward("ok")
	return nil
}

func (f *Forwarder) post(ctx context.Context, url string, body []byte) (int, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.cfg.Secret != "" {
		req.Header.Set(ListenerSecretHeader, f.cfg.Secret)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func messageID(payload map[string]any) any {
	if msg, ok := payload["message"].(map[string]any); ok {
		return msg["message_id"]
	}
	return nil
}
