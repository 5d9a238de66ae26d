package fetcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/rickgao/polymarket-data/internal/api"
	"github.com/rickgao/polymarket-data/internal/model"
)

// ErrLeaderboardIncomplete is returned when any leaderboard page could not be fetched.
var ErrLeaderboardIncomplete = errors.New("leaderboard incomplete")

// LeaderboardSource fetches one leaderboard page.
type LeaderboardSource interface {
	GetLeaderboard(ctx context.Context, opts api.LeaderboardOptions) ([]api.LeaderboardEntry, error)
}

// LeaderboardConfig holds leaderboard query settings.
type LeaderboardConfig struct {
	Size       int // Accounts to collect
	PageSize   int
	TimePeriod string
	OrderBy    string
	Category   string
}

// Leaderboard pages through the ranked leaderboard.
type Leaderboard struct {
	src    LeaderboardSource
	cfg    LeaderboardConfig
	logger *slog.Logger
}

// NewLeaderboard creates a Leaderboard.
func NewLeaderboard(src LeaderboardSource, cfg LeaderboardConfig, logger *slog.Logger) *Leaderboard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 200
	}
	return &Leaderboard{src: src, cfg: cfg, logger: logger}
}

// Size returns the number of accounts the leaderboard collects at most.
func (l *Leaderboard) Size() int {
	return l.cfg.Size
}

// Pages returns the leaderboard as a sequence of ranked pages, starting from
// the first page on every call. The sequence ends after Size accounts, an
// empty page, or a page shorter than requested. A wallet already ranked
// earlier in the sequence is skipped without consuming a rank. On error the
// sequence yields the error once and stops.
func (l *Leaderboard) Pages(ctx context.Context, snapshotAt time.Time) iter.Seq2[[]model.Account, error] {
	return func(yield func([]model.Account, error) bool) {
		seen := make(map[string]struct{}, l.cfg.Size)
		offset := 0
		rank := 0

		for rank < l.cfg.Size {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			limit := min(l.cfg.PageSize, l.cfg.Size-rank)
			entries, err := l.src.GetLeaderboard(ctx, api.LeaderboardOptions{
				Limit:      limit,
				Offset:     offset,
				TimePeriod: l.cfg.TimePeriod,
				OrderBy:    l.cfg.OrderBy,
				Category:   l.cfg.Category,
			})
			if err != nil {
				yield(nil, err)
				return
			}

			page := make([]model.Account, 0, len(entries))
			for _, e := range entries {
				if rank == l.cfg.Size {
					break
				}
				wallet := e.Wallet()
				if _, dup := seen[wallet]; dup {
					l.logger.Debug("skipping repeated leaderboard wallet", "wallet", wallet, "offset", offset)
					continue
				}
				seen[wallet] = struct{}{}
				rank++
				page = append(page, e.ToAccount(rank, snapshotAt))
			}

			l.logger.Debug("fetched leaderboard page",
				"offset", offset,
				"requested", limit,
				"received", len(entries),
				"ranked", rank,
			)

			if len(page) > 0 && !yield(page, nil) {
				return
			}
			if len(entries) < limit {
				return
			}
			offset += len(entries)
		}
	}
}

// Collect fetches the whole leaderboard. Any page failure fails the whole
// fetch; a partial leaderboard is never returned.
func (l *Leaderboard) Collect(ctx context.Context, snapshotAt time.Time) ([]model.Account, error) {
	accounts := make([]model.Account, 0, l.cfg.Size)
	for page, err := range l.Pages(ctx, snapshotAt) {
		if err != nil {
			return nil, fmt.Errorf("%w at rank %d: %w", ErrLeaderboardIncomplete, len(accounts)+1, err)
		}
		accounts = append(accounts, page...)
	}
	return accounts, nil
}
