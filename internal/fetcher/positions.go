package fetcher

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/rickgao/polymarket-data/internal/api"
	"github.com/rickgao/polymarket-data/internal/model"
)

// PositionSource fetches one page of an account's closed positions.
type PositionSource interface {
	GetClosedPositions(ctx context.Context, opts api.ClosedPositionsOptions) ([]api.APIClosedPosition, error)
}

// PositionsConfig holds closed position paging settings.
type PositionsConfig struct {
	PageSize      int
	MaxPerAccount int // 0 means unlimited
}

// Positions pages through closed positions for one account at a time.
type Positions struct {
	src    PositionSource
	cfg    PositionsConfig
	logger *slog.Logger
}

// NewPositions creates a Positions fetcher.
func NewPositions(src PositionSource, cfg PositionsConfig, logger *slog.Logger) *Positions {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	return &Positions{src: src, cfg: cfg, logger: logger}
}

// Pages returns accountID's closed positions page by page until the source
// returns a short page or the per-account cap is reached.
func (p *Positions) Pages(ctx context.Context, accountID string) iter.Seq2[[]model.ClosedPosition, error] {
	return offsetPages(ctx, p.cfg.PageSize, p.cfg.MaxPerAccount,
		func(ctx context.Context, limit, offset int) ([]model.ClosedPosition, error) {
			raw, err := p.src.GetClosedPositions(ctx, api.ClosedPositionsOptions{
				User:   accountID,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return nil, err
			}
			page := make([]model.ClosedPosition, len(raw))
			for i, r := range raw {
				page[i] = r.ToModel(accountID)
			}
			return page, nil
		})
}

// Fetch returns all of accountID's closed positions. An account without
// closed positions yields an empty slice and no error.
func (p *Positions) Fetch(ctx context.Context, accountID string) ([]model.ClosedPosition, error) {
	positions := []model.ClosedPosition{}
	for page, err := range p.Pages(ctx, accountID) {
		if err != nil {
			return nil, fmt.Errorf("fetch positions %s: %w", accountID, err)
		}
		positions = append(positions, page...)
	}

	p.logger.Debug("fetched closed positions", "account", accountID, "count", len(positions))
	return positions, nil
}
