package throttle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewGate(t *testing.T) {
	if _, err := NewGate(0); err == nil {
		t.Error("NewGate(0) expected error, got nil")
	}
	if _, err := NewGate(-3); err == nil {
		t.Error("NewGate(-3) expected error, got nil")
	}

	g, err := NewGate(8)
	if err != nil {
		t.Fatalf("NewGate(8): %v", err)
	}
	if g.Size() != 8 {
		t.Errorf("Size() = %d, want 8", g.Size())
	}
}

func TestGate_BoundsInFlight(t *testing.T) {
	const k = 4

	g, err := NewGate(k)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	var inFlight, maxInFlight atomic.Int32
	var ran atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Run(context.Background(), func(ctx context.Context) error {
				current := inFlight.Add(1)
				defer inFlight.Add(-1)

				for {
					old := maxInFlight.Load()
					if current <= old || maxInFlight.CompareAndSwap(old, current) {
						break
					}
				}

				if n := g.InFlight(); n > k {
					t.Errorf("InFlight() = %d, want <= %d", n, k)
				}

				time.Sleep(5 * time.Millisecond)
				ran.Add(1)
				return nil
			})
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxInFlight.Load(); got > k {
		t.Errorf("maxInFlight = %d, want <= %d", got, k)
	}
	if got := ran.Load(); got != 40 {
		t.Errorf("ran = %d, want 40", got)
	}
	if g.InFlight() != 0 {
		t.Errorf("InFlight() after completion = %d, want 0", g.InFlight())
	}
}

func TestGate_CancelDropsQueuedTasks(t *testing.T) {
	g, err := NewGate(1)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	started := make(chan struct{})

	var blockerDone sync.WaitGroup
	blockerDone.Add(1)
	go func() {
		defer blockerDone.Done()
		g.Run(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var queuedRan atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.Run(ctx, func(ctx context.Context) error {
				queuedRan.Add(1)
				return nil
			})
		}()
	}

	// Let the queued tasks block on the semaphore, then cancel the run.
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()
	close(release)
	blockerDone.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("queued Run() error = %v, want context.Canceled", err)
		}
	}
	if got := queuedRan.Load(); got != 0 {
		t.Errorf("queued tasks ran = %d, want 0", got)
	}
}

func TestGate_RunningTaskSeesCancellation(t *testing.T) {
	g, _ := NewGate(2)
	ctx, cancel := context.WithCancel(context.Background())

	err := g.Run(ctx, func(ctx context.Context) error {
		cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return errors.New("task did not observe cancellation")
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestDo(t *testing.T) {
	g, _ := NewGate(1)

	got, err := Do(context.Background(), g, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}

	wantErr := errors.New("boom")
	_, err = Do(context.Background(), g, func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}
