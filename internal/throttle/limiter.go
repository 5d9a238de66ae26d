package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/polymarket-data/internal/metrics"
)

// Limiter throttles outbound requests to a configured rate.
//
// The bucket holds a single token, so permits are spaced 1/R apart and no
// rolling one-second window ever contains more than R grants. Waiters hold
// reservations in the order they called Acquire, so sustained contention
// cannot starve a caller.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter creates a limiter admitting rps permits per second.
func NewLimiter(rps float64) (*Limiter, error) {
	if rps <= 0 {
		return nil, fmt.Errorf("requests per second must be > 0, got %v", rps)
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), 1)}, nil
}

// Acquire blocks until a permit is granted. It only fails when ctx is done
// before the permit becomes available, in which case no permit is consumed.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.rl.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Wait also fails when the deadline is too close to ever be met.
		return fmt.Errorf("rate limit wait: %w", err)
	}
	metrics.RateLimitWait.Observe(time.Since(start).Seconds())
	return nil
}

// Rate returns the configured permits per second.
func (l *Limiter) Rate() float64 {
	return float64(l.rl.Limit())
}
