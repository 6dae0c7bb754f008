package outbound

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before the attempt following attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Exponential waits Base * 2^(attempt-1) plus a uniform jitter in [0, Jitter).
type Exponential struct {
	Base   time.Duration
	Jitter time.Duration
	// Rand returns a value in [0, 1); nil uses math/rand.
	Rand func() float64
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Jitter > 0 {
		r := rand.Float64
		if e.Rand != nil {
			r = e.Rand
		}
		delay += time.Duration(r() * float64(e.Jitter))
	}
	return delay
}

// Linear waits Step * attempt.
type Linear struct {
	Step time.Duration
}

func (l Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return l.Step * time.Duration(attempt)
}
