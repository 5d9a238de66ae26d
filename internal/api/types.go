package api

import (
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// LeaderboardEntry is one row from GET /v1/leaderboard.
type LeaderboardEntry struct {
	ProxyWallet string              `json:"proxyWallet"`
	User        string              `json:"user"` // Older responses use "user" for the wallet
	UserName    string              `json:"userName"`
	Name        string              `json:"name"`
	Rank        json.RawMessage     `json:"rank"` // Platform rank, informational only
	Pnl         decimal.NullDecimal `json:"pnl"`
	Vol         decimal.NullDecimal `json:"vol"`
}

// Wallet returns the account identifier.
func (e LeaderboardEntry) Wallet() string {
	if e.ProxyWallet != "" {
		return e.ProxyWallet
	}
	return e.User
}

// DisplayName returns the best available display name.
func (e LeaderboardEntry) DisplayName() string {
	if e.UserName != "" {
		return e.UserName
	}
	return e.Name
}

// APIClosedPosition is one row from GET /closed-positions.
type APIClosedPosition struct {
	ID          string `json:"id"`
	PositionID  string `json:"positionId"`
	ProxyWallet string `json:"proxyWallet"`
	Asset       string `json:"asset"` // Outcome token ID
	ConditionID string `json:"conditionId"`
	MarketID    string `json:"marketId"`
	Outcome     string `json:"outcome"`

	Size        decimal.NullDecimal `json:"size"`
	TotalBought decimal.NullDecimal `json:"totalBought"`
	AvgPrice    decimal.NullDecimal `json:"avgPrice"`
	ExitAvg     decimal.NullDecimal `json:"exitAvg"`
	CurPrice    decimal.NullDecimal `json:"curPrice"` // ~1 for resolved winners
	RealizedPnl decimal.NullDecimal `json:"realizedPnl"`

	ClosedAt  flexTime `json:"closedAt"`
	EndDate   flexTime `json:"endDate"`
	Timestamp flexTime `json:"timestamp"`

	Title      string `json:"title"`
	MarketSlug string `json:"marketSlug"`
	Slug       string `json:"slug"`
	EventSlug  string `json:"eventSlug"`

	Raw []byte `json:"-"`
}

// APIPosition is one row from GET /positions, an account's open holding in
// one outcome token.
type APIPosition struct {
	ProxyWallet string `json:"proxyWallet"`
	Asset       string `json:"asset"`
	ConditionID string `json:"conditionId"`
	Outcome     string `json:"outcome"`

	Size         decimal.NullDecimal `json:"size"`
	AvgPrice     decimal.NullDecimal `json:"avgPrice"`
	InitialValue decimal.NullDecimal `json:"initialValue"`
	CurrentValue decimal.NullDecimal `json:"currentValue"`
	CashPnl      decimal.NullDecimal `json:"cashPnl"`
	PercentPnl   decimal.NullDecimal `json:"percentPnl"`
	RealizedPnl  decimal.NullDecimal `json:"realizedPnl"`
	CurPrice     decimal.NullDecimal `json:"curPrice"`

	Redeemable bool     `json:"redeemable"`
	Mergeable  bool     `json:"mergeable"`
	EndDate    flexTime `json:"endDate"`

	Title     string `json:"title"`
	Slug      string `json:"slug"`
	EventSlug string `json:"eventSlug"`

	Raw []byte `json:"-"`
}

// LeaderboardOptions configures a GetLeaderboard request.
type LeaderboardOptions struct {
	Limit      int
	Offset     int
	TimePeriod string // "day", "week", "month", "all"
	OrderBy    string // "PNL", "VOL"
	Category   string
}

// ClosedPositionsOptions configures a GetClosedPositions request.
type ClosedPositionsOptions struct {
	User   string
	Limit  int
	Offset int
}

// PositionsOptions configures a GetPositions request.
type PositionsOptions struct {
	User          string
	Limit         int
	Offset        int
	SizeThreshold string // Smallest position size returned (default ".1")
}
