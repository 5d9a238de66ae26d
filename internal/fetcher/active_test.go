package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rickgao/polymarket-data/internal/api"
)

type fakeActive struct {
	mu    sync.Mutex
	total int
	err   error
	calls []api.PositionsOptions
}

func (f *fakeActive) GetPositions(ctx context.Context, opts api.PositionsOptions) ([]api.APIPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)

	if f.err != nil {
		return nil, f.err
	}
	if opts.Offset >= f.total {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, f.total)
	out := make([]api.APIPosition, 0, end-opts.Offset)
	for i := opts.Offset; i < end; i++ {
		out = append(out, api.APIPosition{
			ProxyWallet: opts.User,
			Asset:       fmt.Sprintf("tok-%d", i),
			ConditionID: "cond",
			Size:        decimal.NewNullDecimal(decimal.NewFromInt(int64(i + 1))),
		})
	}
	return out, nil
}

func TestActivePositions_Fetch(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		pageSize  int
		max       int
		wantCount int
		wantCalls int
	}{
		{"single page", 3, 50, 0, 3, 1},
		{"several pages", 120, 50, 0, 120, 3},
		{"no holdings", 0, 50, 0, 0, 1},
		{"capped", 120, 50, 10, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeActive{total: tt.total}
			a := NewActivePositions(src, ActiveConfig{PageSize: tt.pageSize, MaxPerAccount: tt.max, SizeThreshold: "1"}, nil)

			positions, err := a.Fetch(context.Background(), "0xw")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if positions == nil {
				t.Fatal("positions should be empty, not nil")
			}
			if len(positions) != tt.wantCount {
				t.Errorf("len(positions) = %d, want %d", len(positions), tt.wantCount)
			}
			if len(src.calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(src.calls), tt.wantCalls)
			}
			for _, c := range src.calls {
				if c.User != "0xw" || c.SizeThreshold != "1" {
					t.Errorf("call = %+v", c)
				}
			}
			for _, p := range positions {
				if p.AccountID != "0xw" || p.Asset == "" {
					t.Errorf("position = %+v", p)
				}
			}
		})
	}
}

func TestActivePositions_FetchError(t *testing.T) {
	src := &fakeActive{err: api.ErrPermanent}
	a := NewActivePositions(src, ActiveConfig{}, nil)

	positions, err := a.Fetch(context.Background(), "0xw")
	if !errors.Is(err, api.ErrPermanent) {
		t.Fatalf("error = %v, want ErrPermanent", err)
	}
	if positions != nil {
		t.Errorf("positions = %v, want nil", positions)
	}
}

func TestActivePositions_DefaultPageSize(t *testing.T) {
	src := &fakeActive{total: 1}
	a := NewActivePositions(src, ActiveConfig{}, nil)

	if _, err := a.Fetch(context.Background(), "0xw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := src.calls[0].Limit; got != 100 {
		t.Errorf("Limit = %d, want 100", got)
	}
}
