package throttle

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/rickgao/polymarket-data/internal/metrics"
)

// Gate bounds the number of concurrently executing tasks.
//
// Slots are handed out first-come first-served. A task whose context is
// cancelled while it is still queued is dropped without running.
type Gate struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// NewGate creates a gate with k slots. k < 1 is rejected here rather than
// deadlocking at runtime.
func NewGate(k int) (*Gate, error) {
	if k < 1 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", k)
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(k)),
		size: k,
	}, nil
}

// Run waits for a slot, runs task with ctx and releases the slot.
// If ctx is done before a slot frees up, task is not executed and ctx.Err() is returned.
func (g *Gate) Run(ctx context.Context, task func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	// A slot can be granted in the same instant the run is cancelled.
	if err := ctx.Err(); err != nil {
		return err
	}

	g.inFlight.Add(1)
	metrics.GateInFlight.Inc()
	defer func() {
		g.inFlight.Add(-1)
		metrics.GateInFlight.Dec()
	}()

	return task(ctx)
}

// Do runs fn through g and returns its result.
func Do[T any](ctx context.Context, g *Gate, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Run(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// InFlight returns the number of tasks currently running.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Size returns the number of slots.
func (g *Gate) Size() int {
	return g.size
}
