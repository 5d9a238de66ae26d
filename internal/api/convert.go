package api

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/polymarket-data/internal/model"
)

// ToAccount converts a leaderboard entry to a model.Account.
func (e LeaderboardEntry) ToAccount(rank int, snapshotAt time.Time) model.Account {
	return model.Account{
		AccountID:   e.Wallet(),
		Rank:        rank,
		DisplayName: e.DisplayName(),
		SnapshotAt:  snapshotAt,
	}
}

// Key returns the stable position identifier. Closed positions carry no ID of
// their own on most responses; the outcome token is unique per wallet, so the
// wallet and asset together identify the position.
func (p APIClosedPosition) Key(accountID string) string {
	if p.ID != "" {
		return p.ID
	}
	if p.PositionID != "" {
		return p.PositionID
	}
	if p.Asset == "" {
		return ""
	}
	wallet := p.ProxyWallet
	if wallet == "" {
		wallet = accountID
	}
	return wallet + ":" + p.Asset
}

// ToModel converts an API closed position to a model.ClosedPosition owned by accountID.
func (p APIClosedPosition) ToModel(accountID string) model.ClosedPosition {
	marketID := p.ConditionID
	if marketID == "" {
		marketID = p.MarketID
	}

	slug := firstNonEmpty(p.MarketSlug, p.Slug, p.EventSlug)

	return model.ClosedPosition{
		PositionID:  p.Key(accountID),
		AccountID:   accountID,
		MarketID:    marketID,
		Outcome:     p.Outcome,
		Size:        firstDecimal(p.Size, p.TotalBought),
		EntryPrice:  firstDecimal(p.AvgPrice),
		ExitPrice:   firstDecimal(p.ExitAvg, p.CurPrice),
		PnL:         firstDecimal(p.RealizedPnl),
		ClosedAt:    firstTime(p.ClosedAt, p.EndDate, p.Timestamp),
		MarketSlug:  slug,
		MarketTitle: p.Title,
		RawJSON:     p.Raw,
	}
}

// ToModel converts an API position to a model.ActivePosition owned by accountID.
func (p APIPosition) ToModel(accountID string) model.ActivePosition {
	return model.ActivePosition{
		AccountID:    accountID,
		Asset:        p.Asset,
		MarketID:     p.ConditionID,
		Outcome:      p.Outcome,
		Size:         firstDecimal(p.Size),
		AvgPrice:     firstDecimal(p.AvgPrice),
		InitialValue: firstDecimal(p.InitialValue),
		CurrentValue: firstDecimal(p.CurrentValue),
		CashPnL:      firstDecimal(p.CashPnl),
		PercentPnL:   firstDecimal(p.PercentPnl),
		RealizedPnL:  firstDecimal(p.RealizedPnl),
		CurPrice:     firstDecimal(p.CurPrice),
		Redeemable:   p.Redeemable,
		Mergeable:    p.Mergeable,
		EndDate:      firstTime(p.EndDate),
		MarketSlug:   firstNonEmpty(p.Slug, p.EventSlug),
		MarketTitle:  p.Title,
		RawJSON:      p.Raw,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstDecimal(vals ...decimal.NullDecimal) decimal.Decimal {
	for _, v := range vals {
		if v.Valid {
			return v.Decimal
		}
	}
	return decimal.Zero
}

func firstTime(vals ...flexTime) *time.Time {
	for _, v := range vals {
		if v.Valid {
			t := v.Time
			return &t
		}
	}
	return nil
}

// flexTime decodes the timestamp shapes seen on closed positions: RFC 3339
// strings, date-only strings, and unix seconds or milliseconds as numbers or strings.
type flexTime struct {
	Time  time.Time
	Valid bool
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("flexTime: %w", err)
		}
		s = strings.TrimSpace(unq)
		if s == "" {
			return nil
		}
	}

	t, ok := parseFlexTime(s)
	if !ok {
		return fmt.Errorf("flexTime: unrecognized time %q", s)
	}
	f.Time = t
	f.Valid = true
	return nil
}

func parseFlexTime(s string) (time.Time, bool) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return time.Unix(int64(n), 0).UTC(), true
	}

	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
