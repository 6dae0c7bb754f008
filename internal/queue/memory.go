package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker for embedded workers and tests.
// Tasks are lost when the process exits.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	size   int
}

// NewMemoryBroker creates a broker whose queues buffer up to size payloads.
func NewMemoryBroker(size int) *MemoryBroker {
	if size <= 0 {
		size = 1024
	}
	return &MemoryBroker{queues: make(map[string]chan []byte), size: size}
}

func (b *MemoryBroker) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, b.size)
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) Push(ctx context.Context, queue string, payload []byte) error {
	select {
	case b.queue(queue) <- append([]byte(nil), payload...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-b.queue(queue):
		return payload, nil
	case <-timer.C:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of buffered payloads in queue.
func (b *MemoryBroker) Len(queue string) int {
	return len(b.queue(queue))
}

func (b *MemoryBroker) Close() error { return nil }
