package fetcher

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/rickgao/polymarket-data/internal/api"
	"github.com/rickgao/polymarket-data/internal/model"
)

// ActiveSource fetches one page of an account's active positions.
type ActiveSource interface {
	GetPositions(ctx context.Context, opts api.PositionsOptions) ([]api.APIPosition, error)
}

// ActiveConfig holds active position paging settings.
type ActiveConfig struct {
	PageSize      int
	MaxPerAccount int    // 0 means unlimited
	SizeThreshold string // Passed through to the API; empty uses its default
}

// ActivePositions pages through active positions for one account at a time.
type ActivePositions struct {
	src    ActiveSource
	cfg    ActiveConfig
	logger *slog.Logger
}

// NewActivePositions creates an ActivePositions fetcher.
func NewActivePositions(src ActiveSource, cfg ActiveConfig, logger *slog.Logger) *ActivePositions {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	return &ActivePositions{src: src, cfg: cfg, logger: logger}
}

// Pages returns accountID's active positions page by page.
func (a *ActivePositions) Pages(ctx context.Context, accountID string) iter.Seq2[[]model.ActivePosition, error] {
	return offsetPages(ctx, a.cfg.PageSize, a.cfg.MaxPerAccount,
		func(ctx context.Context, limit, offset int) ([]model.ActivePosition, error) {
			raw, err := a.src.GetPositions(ctx, api.PositionsOptions{
				User:          accountID,
				Limit:         limit,
				Offset:        offset,
				SizeThreshold: a.cfg.SizeThreshold,
			})
			if err != nil {
				return nil, err
			}
			page := make([]model.ActivePosition, len(raw))
			for i, r := range raw {
				page[i] = r.ToModel(accountID)
			}
			return page, nil
		})
}

// Fetch returns all of accountID's active positions. An account without open
// holdings yields an empty slice and no error.
func (a *ActivePositions) Fetch(ctx context.Context, accountID string) ([]model.ActivePosition, error) {
	positions := []model.ActivePosition{}
	for page, err := range a.Pages(ctx, accountID) {
		if err != nil {
			return nil, fmt.Errorf("fetch active positions %s: %w", accountID, err)
		}
		positions = append(positions, page...)
	}

	a.logger.Debug("fetched active positions", "account", accountID, "count", len(positions))
	return positions, nil
}
