// Package queue moves work from the request path to background workers
// through a broker-backed list of JSON task envelopes.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Broker.Pop when no task arrived within the timeout.
var ErrEmpty = errors.New("queue: no task available")

// Broker is a FIFO list of opaque payloads keyed by queue name.
type Broker interface {
	Push(ctx context.Context, queue string, payload []byte) error
	// Pop blocks up to timeout for the oldest payload.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	Close() error
}
