package api

import (
	"math/rand/v2"
	"time"
)

// backoff is the retry schedule of a single request: the number of attempts
// made so far and the un-jittered delay before the next one.
type backoff struct {
	attempt int
	next    time.Duration
	max     time.Duration
	jitter  func() float64
}

func newBackoff(base, max time.Duration, jitter func() float64) *backoff {
	return &backoff{next: base, max: max, jitter: jitter}
}

// delay returns the wait before the next attempt and advances the schedule.
// A positive hint (from Retry-After) replaces the computed delay.
func (b *backoff) delay(hint time.Duration) time.Duration {
	b.attempt++

	d := hint
	if d <= 0 {
		d = time.Duration(float64(b.next) * b.jitter())
	}
	if b.max > 0 && d > b.max {
		d = b.max
	}

	b.next *= 2
	if b.max > 0 && b.next > b.max {
		b.next = b.max
	}
	return d
}

// defaultJitter returns a factor in [0.75, 1.25).
func defaultJitter() float64 {
	return 0.75 + rand.Float64()*0.5
}
