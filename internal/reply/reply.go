// Package reply routes outbound text to the sender for a platform.
package reply

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edgard/nexa/internal/errs"
)

// Sender delivers text to a chat on one platform. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, chatID, text string) error

func (f SenderFunc) Send(ctx context.Context, chatID, text string) error {
	return f(ctx, chatID, text)
}

// Registry maps platform names to senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register sets the sender for platform, replacing any previous one.
func (r *Registry) Register(platform string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[platform] = s
}

// Sender returns the sender for platform or a not-found error.
func (r *Registry) Sender(platform string) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.senders[platform]
	if !ok {
		return nil, errs.NewNotFound(fmt.Sprintf("no reply sender for platform %q", platform))
	}
	return s, nil
}

// Send delivers text through the platform's sender. Delivery failures are
// returned as upstream errors.
func (r *Registry) Send(ctx context.Context, platform, chatID, text string) error {
	s, err := r.Sender(platform)
	if err != nil {
		return err
	}
	if err := s.Send(ctx, chatID, text); err != nil {
		return errs.NewUpstream(fmt.Sprintf("%s send failed", platform), err)
	}
	return nil
}

// Platforms lists registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.senders))
	for p := range r.senders {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
