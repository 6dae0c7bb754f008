// Package outbound runs calls to external services under a retry policy with
// per-candidate backoff and ordered fallback between candidates (models,
// endpoints).
package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrExhausted is returned when every attempt of every candidate failed with a
// retryable error.
var ErrExhausted = errors.New("outbound attempts exhausted")

// Verdict is the classification of a failed attempt.
type Verdict int

const (
	// Retry means the same candidate may be tried again after a delay.
	Retry Verdict = iota + 1
	// Fatal aborts the whole call.
	Fatal
)

func (v Verdict) String() string {
	switch v {
	case Retry:
		return "retry"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is what a Classifier decides for one error. Hint, when positive,
// replaces the backoff delay (for example a Retry-After header).
type Outcome struct {
	Verdict Verdict
	Hint    time.Duration
}

// Classifier maps a non-nil attempt error to an Outcome.
type Classifier func(err error) Outcome

// DefaultClassify treats context errors as fatal and everything else as retryable.
func DefaultClassify(err error) Outcome {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Verdict: Fatal}
	}
	return Outcome{Verdict: Retry}
}

// Attempt describes one finished attempt, passed to Policy.OnAttempt.
type Attempt struct {
	Name      string
	Candidate string
	Number    int
	Err       error
	Verdict   Verdict
	Wait      time.Duration
}

// Policy configures Do.
type Policy struct {
	// Name labels logs and attempt hooks.
	Name string
	// Attempts is the number of tries per candidate; values below 1 mean 1.
	Attempts int
	Backoff  Backoff
	Classify Classifier
	// Sleep waits between attempts; it must return early with ctx.Err() on cancellation.
	Sleep     func(ctx context.Context, d time.Duration) error
	OnAttempt func(Attempt)
	Logger    *slog.Logger
}

// Do calls fn for each candidate in order until one succeeds. It returns the
// result and the candidate that produced it.
//
// A retryable failure waits (hint or backoff) and retries the same candidate.
// No wait happens after the last attempt of a candidate; the next candidate
// is tried immediately. A fatal failure or context cancellation stops
// everything.
func Do[T any](ctx context.Context, p Policy, candidates []string, fn func(ctx context.Context, candidate string) (T, error)) (T, string, error) {
	var zero T

	p = p.withDefaults()
	log := p.Logger.With("call", p.Name)

	var lastErr error
	for _, candidate := range candidates {
		for attempt := 1; attempt <= p.Attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return zero, "", fmt.Errorf("%s: %w", p.Name, err)
			}

			result, err := fn(ctx, candidate)
			if err == nil {
				if attempt > 1 || candidate != candidates[0] {
					log.InfoContext(ctx, "Outbound call succeeded after retry", "candidate", candidate, "attempt", attempt)
				}
				p.hook(Attempt{Name: p.Name, Candidate: candidate, Number: attempt})
				return result, candidate, nil
			}
			lastErr = err

			outcome := p.Classify(err)
			if ctx.Err() != nil {
				outcome = Outcome{Verdict: Fatal}
			}

			wait := time.Duration(0)
			if outcome.Verdict == Retry && attempt < p.Attempts {
				wait = outcome.Hint
				if wait <= 0 {
					wait = p.Backoff.Delay(attempt)
				}
			}

			p.hook(Attempt{Name: p.Name, Candidate: candidate, Number: attempt, Err: err, Verdict: outcome.Verdict, Wait: wait})
			log.DebugContext(ctx, "Outbound attempt failed",
				"candidate", candidate, "attempt", attempt, "verdict", outcome.Verdict.String(), "wait", wait, "error", err)

			if outcome.Verdict == Fatal {
				return zero, "", fmt.Errorf("%s: candidate %q: %w", p.Name, candidate, err)
			}

			if attempt == p.Attempts {
				break
			}
			if err := p.Sleep(ctx, wait); err != nil {
				return zero, "", fmt.Errorf("%s: %w", p.Name, err)
			}
		}
	}

	log.WarnContext(ctx, "Outbound call exhausted all candidates", "candidates", len(candidates), "error", lastErr)
	if lastErr == nil {
		return zero, "", fmt.Errorf("%s: %w: no candidates", p.Name, ErrExhausted)
	}
	return zero, "", fmt.Errorf("%s: %w: %w", p.Name, ErrExhausted, lastErr)
}

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = Exponential{Base: time.Second, Jitter: time.Second}
	}
	if p.Classify == nil {
		p.Classify = DefaultClassify
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if p.Name == "" {
		p.Name = "outbound"
	}
	return p
}

func (p Policy) hook(a Attempt) {
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
