package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Leaderboard Types
// -----------------------------------------------------------------------------

// Account is one leaderboard entrant as observed by a single ingest run.
type Account struct {
	AccountID   string    // Wallet address (unique per snapshot)
	Rank        int       // 1-based position in the snapshot
	DisplayName string    // User name, may change across runs
	SnapshotAt  time.Time // Snapshot time of the run that observed this rank
}

// Market is a prediction market referenced by closed positions.
type Market struct {
	MarketID string // Condition ID (primary key)
	Slug     string
	Title    string
}

// ClosedPosition is a resolved trade belonging to an account.
type ClosedPosition struct {
	PositionID string // Primary key across the whole store
	AccountID  string // Owning wallet
	MarketID   string // Condition ID
	Outcome    string // Outcome label (e.g. "Yes", "No", team name)

	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal // Resolution price for resolved markets
	PnL        decimal.Decimal

	ClosedAt *time.Time // nil when the platform reports no close time

	MarketSlug  string // Carried into the markets table
	MarketTitle string
	RawJSON     []byte // Original payload, stored verbatim
}

// Market returns the market referenced by the position.
func (p ClosedPosition) Market() Market {
	return Market{MarketID: p.MarketID, Slug: p.MarketSlug, Title: p.MarketTitle}
}

// ActivePosition is an open holding of an account in one outcome token.
// An account holds at most one active position per asset.
type ActivePosition struct {
	AccountID string
	Asset     string // Outcome token ID
	MarketID  string // Condition ID
	Outcome   string

	Size         decimal.Decimal
	AvgPrice     decimal.Decimal
	InitialValue decimal.Decimal
	CurrentValue decimal.Decimal
	CashPnL      decimal.Decimal
	PercentPnL   decimal.Decimal
	RealizedPnL  decimal.Decimal
	CurPrice     decimal.Decimal

	Redeemable bool
	Mergeable  bool
	EndDate    *time.Time

	MarketSlug  string
	MarketTitle string
	RawJSON     []byte
}

// Market returns the market referenced by the position.
func (p ActivePosition) Market() Market {
	return Market{MarketID: p.MarketID, Slug: p.MarketSlug, Title: p.MarketTitle}
}

// -----------------------------------------------------------------------------
// Run Types
// -----------------------------------------------------------------------------

// RunStatus is the final (or current) status of an ingest run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ErrorKind classifies failures recorded in a run summary.
type ErrorKind string

const (
	KindTransient             ErrorKind = "Transient"
	KindPermanentRequest      ErrorKind = "Permanent-Request"
	KindLeaderboardIncomplete ErrorKind = "Leaderboard-Incomplete"
	KindAccountIsolated       ErrorKind = "Account-Isolated"
	KindPersistenceBatch      ErrorKind = "Persistence-Batch"
	KindCancelled             ErrorKind = "Cancelled"
	KindConfiguration         ErrorKind = "Configuration"
)

// AccountError records a failure attributed to a single account.
type AccountError struct {
	AccountID string    `json:"account_id"`
	Kind      ErrorKind `json:"kind"`
	Cause     ErrorKind `json:"cause,omitempty"` // Transient or Permanent-Request for fetch failures
	Reason    string    `json:"reason"`
}

// IngestRun is the persisted metadata of one pipeline execution.
type IngestRun struct {
	ID               uuid.UUID
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           RunStatus
	AccountsFetched  int
	PositionsFetched int
	ErrorCount       int
	ErrorSummary     string
}

// RunSummary is returned to the caller of one ingest iteration.
type RunSummary struct {
	RunID              uuid.UUID      `json:"run_id"`
	Status             RunStatus      `json:"status"`
	SnapshotAt         time.Time      `json:"snapshot_at"`
	AccountsFetched    int            `json:"accounts_fetched"`
	PositionsFetched   int            `json:"positions_fetched"`
	PositionsPersisted int            `json:"positions_persisted"`
	ActiveFetched      int            `json:"active_positions_fetched"`
	ActivePersisted    int            `json:"active_positions_persisted"`
	Errors             []AccountError `json:"errors"`
	FailureKind        ErrorKind      `json:"failure_kind,omitempty"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	Duration           time.Duration  `json:"duration"`
}

// ErrorSummary renders a compact description of the recorded errors for the
// ingest_runs table. A positive max bounds the result length.
func (s *RunSummary) ErrorSummary(max int) string {
	var parts []string
	if s.FailureReason != "" {
		parts = append(parts, string(s.FailureKind)+": "+s.FailureReason)
	}
	for _, e := range s.Errors {
		kind := string(e.Kind)
		if e.Cause != "" {
			kind += " (" + string(e.Cause) + ")"
		}
		parts = append(parts, e.AccountID+" "+kind+": "+e.Reason)
	}

	out := strings.Join(parts, "; ")
	if max <= 0 || len(out) <= max {
		return out
	}
	const ellipsis = "..."
	if max <= len(ellipsis) {
		return truncate(out, max)
	}
	return truncate(out, max-len(ellipsis)) + ellipsis
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SnapshotTime normalizes a wall-clock time to the precision stored for snapshots.
func SnapshotTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
