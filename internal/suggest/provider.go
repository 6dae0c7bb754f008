// Package suggest generates short reply suggestions for inbound messages
// through an AI provider, with model fallback and rate-limit aware retries.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/nexa/internal/outbound"
)

// Provider is an AI backend able to list its models and complete a prompt.
type Provider interface {
	// Family is the model name prefix native to the provider (gpt, gemini).
	Family() string
	ListModels(ctx context.Context) ([]string, error)
	Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error)
}

// HTTPError is a non-2xx response from a provider.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, e.Body)
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Classify maps provider errors onto retry verdicts. Rate limits and transport
// failures retry, including a request that ran past its own timeout; other
// HTTP statuses and cancellation are fatal. Do treats expiry of the caller's
// context as fatal on its own.
func Classify(err error) outbound.Outcome {
	if errors.Is(err, context.Canceled) {
		return outbound.Outcome{Verdict: outbound.Fatal}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Status == http.StatusTooManyRequests {
			return outbound.Outcome{Verdict: outbound.Retry, Hint: httpErr.RetryAfter}
		}
		return outbound.Outcome{Verdict: outbound.Fatal}
	}

	return outbound.Outcome{Verdict: outbound.Retry}
}
