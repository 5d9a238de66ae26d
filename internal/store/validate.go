package store

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/rickgao/polymarket-data/internal/model"
)

// validateSnapshot checks a snapshot batch before any write.
func validateSnapshot(accounts []model.Account, snapshotAt time.Time) error {
	n := len(accounts)
	seenAccount := make(map[string]struct{}, n)
	seenRank := make(map[int]struct{}, n)

	for i, a := range accounts {
		if a.AccountID == "" {
			return fmt.Errorf("%w: account %d has no id", ErrInvalidRow, i)
		}
		if _, dup := seenAccount[a.AccountID]; dup {
			return fmt.Errorf("%w: account %s appears twice", ErrInvalidRow, a.AccountID)
		}
		seenAccount[a.AccountID] = struct{}{}

		if a.Rank < 1 || a.Rank > n {
			return fmt.Errorf("%w: account %s rank %d outside 1..%d", ErrInvalidRow, a.AccountID, a.Rank, n)
		}
		if _, dup := seenRank[a.Rank]; dup {
			return fmt.Errorf("%w: rank %d assigned twice", ErrInvalidRow, a.Rank)
		}
		seenRank[a.Rank] = struct{}{}

		if !a.SnapshotAt.Equal(snapshotAt) {
			return fmt.Errorf("%w: account %s snapshot %s, batch snapshot %s",
				ErrInvalidRow, a.AccountID, a.SnapshotAt.Format(time.RFC3339Nano), snapshotAt.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// preparePositions validates a position batch and collapses duplicate
// position ids to their last occurrence. The result is ordered by position
// id so concurrent batches lock rows in the same order.
func preparePositions(positions []model.ClosedPosition) ([]model.ClosedPosition, error) {
	byID := make(map[string]model.ClosedPosition, len(positions))

	for i, p := range positions {
		if p.PositionID == "" {
			return nil, fmt.Errorf("%w: position %d has no id", ErrInvalidRow, i)
		}
		if p.AccountID == "" {
			return nil, fmt.Errorf("%w: position %s has no account", ErrInvalidRow, p.PositionID)
		}
		if len(p.RawJSON) > 0 && !json.Valid(p.RawJSON) {
			return nil, fmt.Errorf("%w: position %s raw payload is not JSON", ErrInvalidRow, p.PositionID)
		}
		byID[p.PositionID] = p
	}

	out := make([]model.ClosedPosition, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.ClosedPosition) int {
		return cmp.Compare(a.PositionID, b.PositionID)
	})
	return out, nil
}

// prepareActive validates active positions and collapses duplicate
// (account, asset) keys to their last occurrence, ordered by key.
func prepareActive(positions []model.ActivePosition) ([]model.ActivePosition, error) {
	type key struct{ account, asset string }
	byKey := make(map[key]model.ActivePosition, len(positions))

	for i, p := range positions {
		if p.AccountID == "" {
			return nil, fmt.Errorf("%w: active position %d has no account", ErrInvalidRow, i)
		}
		if p.Asset == "" {
			return nil, fmt.Errorf("%w: active position %d of %s has no asset", ErrInvalidRow, i, p.AccountID)
		}
		if len(p.RawJSON) > 0 && !json.Valid(p.RawJSON) {
			return nil, fmt.Errorf("%w: active position %s:%s raw payload is not JSON", ErrInvalidRow, p.AccountID, p.Asset)
		}
		byKey[key{p.AccountID, p.Asset}] = p
	}

	out := make([]model.ActivePosition, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.ActivePosition) int {
		return cmp.Or(cmp.Compare(a.AccountID, b.AccountID), cmp.Compare(a.Asset, b.Asset))
	})
	return out, nil
}

// prepareBatch validates both halves of a position batch before any write.
func prepareBatch(b PositionBatch) (PositionBatch, error) {
	closed, err := preparePositions(b.Closed)
	if err != nil {
		return PositionBatch{}, err
	}
	active, err := prepareActive(b.Active)
	if err != nil {
		return PositionBatch{}, err
	}
	return PositionBatch{Closed: closed, Active: active}, nil
}

// marketsOf returns the distinct markets referenced by positions, ordered by
// id. Later positions fill in slug and title left empty by earlier ones.
func marketsOf(closed []model.ClosedPosition, active []model.ActivePosition) []model.Market {
	refs := make([]model.Market, 0, len(closed)+len(active))
	for _, p := range closed {
		refs = append(refs, p.Market())
	}
	for _, p := range active {
		refs = append(refs, p.Market())
	}

	byID := make(map[string]model.Market)
	for _, ref := range refs {
		if ref.MarketID == "" {
			continue
		}
		m := byID[ref.MarketID]
		m.MarketID = ref.MarketID
		if ref.Slug != "" {
			m.Slug = ref.Slug
		}
		if ref.Title != "" {
			m.Title = ref.Title
		}
		byID[ref.MarketID] = m
	}

	out := make([]model.Market, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b model.Market) int {
		return cmp.Compare(a.MarketID, b.MarketID)
	})
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
