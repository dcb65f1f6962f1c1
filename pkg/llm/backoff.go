package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes the wait between delivery attempts.
// The wait before attempt n+1 (n 0-indexed) is BaseDelay * Factor^n, capped at
// MaxDelay when MaxDelay is positive.
type BackoffPolicy struct {
	BaseDelay time.Duration
	Factor    float64
	MaxDelay  time.Duration

	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff waits 1s, 2s, 4s, ... between attempts.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay: time.Second,
		Factor:    2.0,
	}
}

// Delay returns the wait after the given failed attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor <= 0 {
		factor = 2.0
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter && delay > 0 {
		delay = delay/2 + time.Duration(rand.Int64N(int64(delay)))
	}
	return delay
}

func (p BackoffPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
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
