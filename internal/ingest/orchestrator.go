package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/polymarket-data/internal/api"
	"github.com/rickgao/polymarket-data/internal/metrics"
	"github.com/rickgao/polymarket-data/internal/model"
	"github.com/rickgao/polymarket-data/internal/store"
	"github.com/rickgao/polymarket-data/internal/throttle"
)

var (
	// ErrRunFailed is returned by Run when the run ends in the Failed state.
	ErrRunFailed = errors.New("ingest run failed")

	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("orchestrator already started")
)

// LeaderboardFetcher returns the complete ranked leaderboard or an error.
type LeaderboardFetcher interface {
	Collect(ctx context.Context, snapshotAt time.Time) ([]model.Account, error)
}

// PositionFetcher returns every closed position of one account.
type PositionFetcher interface {
	Fetch(ctx context.Context, accountID string) ([]model.ClosedPosition, error)
}

// ActiveFetcher returns every active position of one account.
type ActiveFetcher interface {
	Fetch(ctx context.Context, accountID string) ([]model.ActivePosition, error)
}

// Config holds orchestrator settings.
type Config struct {
	ErrorSummaryLimit int              // Max length of ingest_runs.error_summary (default: 4000)
	FinalizeTimeout   time.Duration    // Budget for recording the run outcome (default: 10s)
	Now               func() time.Time // Clock (default: time.Now)
}

// Deps are the collaborators of one run. The orchestrator does not own them.
type Deps struct {
	Leaderboard LeaderboardFetcher
	Positions   PositionFetcher
	Active      ActiveFetcher // Optional; nil skips active positions
	Gate        *throttle.Gate
	Store       store.Store
}

// Orchestrator drives a single ingest iteration.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	state   atomic.Int32
	started atomic.Bool
}

// New creates an Orchestrator. Missing dependencies are a configuration error.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case deps.Leaderboard == nil:
		return nil, fmt.Errorf("%s: leaderboard fetcher is required", model.KindConfiguration)
	case deps.Positions == nil:
		return nil, fmt.Errorf("%s: position fetcher is required", model.KindConfiguration)
	case deps.Gate == nil:
		return nil, fmt.Errorf("%s: concurrency gate is required", model.KindConfiguration)
	case deps.Store == nil:
		return nil, fmt.Errorf("%s: store is required", model.KindConfiguration)
	}

	if cfg.ErrorSummaryLimit <= 0 {
		cfg.ErrorSummaryLimit = 4000
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// accountResult is the tagged outcome of one account's position fetch.
type accountResult struct {
	accountID string
	closed    []model.ClosedPosition
	active    []model.ActivePosition
	err       error
}

// run carries the mutable bookkeeping of one Run call.
type run struct {
	record  model.IngestRun
	summary *model.RunSummary
	start   time.Time
	logger  *slog.Logger
}

// Run executes one ingest iteration. The summary is always returned; the
// error is non-nil exactly when the run ends Failed.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunSummary, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	start := o.cfg.Now()
	snapshotAt := model.SnapshotTime(start)
	id := uuid.New()

	r := &run{
		record: model.IngestRun{
			ID:        id,
			StartedAt: snapshotAt,
			Status:    model.RunRunning,
		},
		summary: &model.RunSummary{
			RunID:      id,
			Status:     model.RunRunning,
			SnapshotAt: snapshotAt,
			Errors:     []model.AccountError{},
		},
		start:  start,
		logger: o.logger.With("run_id", id),
	}

	if err := o.deps.Store.CreateRun(ctx, r.record); err != nil {
		// Without a run record there is nothing to finalize.
		kind := model.KindPersistenceBatch
		if ctx.Err() != nil {
			kind = model.KindCancelled
		}
		o.transition(r, StateFailed)
		return o.finish(r, kind, fmt.Errorf("create run: %w", err), false)
	}
	o.transition(r, StateFetchingLeaderboard)
	r.logger.Info("ingest run started", "snapshot_at", snapshotAt)

	accounts, err := o.deps.Leaderboard.Collect(ctx, snapshotAt)
	if err != nil {
		kind := model.KindLeaderboardIncomplete
		if ctx.Err() != nil {
			kind = model.KindCancelled
		}
		return o.fail(r, kind, err)
	}
	r.summary.AccountsFetched = len(accounts)
	r.logger.Info("leaderboard fetched", "accounts", len(accounts))

	o.transition(r, StateFetchingPositions)
	results := o.fetchPositions(ctx, r, accounts)
	if err := ctx.Err(); err != nil {
		return o.fail(r, model.KindCancelled, fmt.Errorf("fetch positions: %w", err))
	}

	o.transition(r, StatePersisting)
	if err := o.persist(ctx, r, accounts, snapshotAt, results); err != nil {
		kind := model.KindPersistenceBatch
		if ctx.Err() != nil {
			kind = model.KindCancelled
		}
		return o.fail(r, kind, err)
	}

	o.transition(r, StateCompleted)
	r.summary.Status = model.RunCompleted
	return o.finish(r, "", nil, true)
}

// fetchAccount fetches closed and then active positions for one account.
func (o *Orchestrator) fetchAccount(ctx context.Context, accountID string) accountResult {
	res := accountResult{accountID: accountID}
	res.closed, res.err = o.deps.Positions.Fetch(ctx, accountID)
	if res.err != nil || o.deps.Active == nil {
		return res
	}
	res.active, res.err = o.deps.Active.Fetch(ctx, accountID)
	return res
}

// fetchPositions fans out one gated task per account and drains their tagged
// results. Results are keyed by account id.
func (o *Orchestrator) fetchPositions(ctx context.Context, r *run, accounts []model.Account) map[string]accountResult {
	resultCh := make(chan accountResult, len(accounts))
	var wg sync.WaitGroup

	for _, a := range accounts {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()

			res, err := throttle.Do(ctx, o.deps.Gate, func(ctx context.Context) (accountResult, error) {
				res := o.fetchAccount(ctx, accountID)
				return res, res.err
			})
			res.accountID, res.err = accountID, err
			resultCh <- res
		}(a.AccountID)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]accountResult, len(accounts))
	var fetched, failed, dropped int
	for res := range resultCh {
		results[res.accountID] = res
		switch {
		case res.err == nil:
			fetched++
			r.summary.PositionsFetched += len(res.closed)
			r.summary.ActiveFetched += len(res.active)
		case ctx.Err() != nil:
			dropped++
		default:
			failed++
		}
	}

	// Failures are reported in rank order.
	if ctx.Err() == nil {
		for _, a := range accounts {
			if res := results[a.AccountID]; res.err != nil {
				o.recordAccountError(r, a.AccountID, model.KindAccountIsolated, res.err)
			}
		}
	}

	r.logger.Info("positions fetched",
		"accounts", fetched,
		"failed", failed,
		"dropped", dropped,
		"positions", r.summary.PositionsFetched,
		"active_positions", r.summary.ActiveFetched,
	)
	return results
}

// persist writes the snapshot, then one position batch per account holding
// its closed and active positions. A
// snapshot failure is returned; position batch failures are recorded per
// account.
func (o *Orchestrator) persist(ctx context.Context, r *run, accounts []model.Account, snapshotAt time.Time, results map[string]accountResult) error {
	if _, err := o.deps.Store.UpsertSnapshot(ctx, r.record.ID, accounts, snapshotAt); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	for _, a := range accounts {
		res := results[a.AccountID]
		if res.err != nil || len(res.closed)+len(res.active) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("persist positions: %w", err)
		}

		wr, err := o.deps.Store.UpsertPositions(ctx, store.PositionBatch{Closed: res.closed, Active: res.active})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("persist positions: %w", err)
			}
			o.recordAccountError(r, a.AccountID, model.KindPersistenceBatch, err)
			continue
		}
		r.summary.PositionsPersisted += wr.Rows
		r.summary.ActivePersisted += wr.Active
	}

	r.logger.Info("persisted run",
		"accounts", len(accounts),
		"positions", r.summary.PositionsPersisted,
		"active_positions", r.summary.ActivePersisted,
	)
	return nil
}

func (o *Orchestrator) recordAccountError(r *run, accountID string, kind model.ErrorKind, err error) {
	cause := causeOf(err)
	r.summary.Errors = append(r.summary.Errors, model.AccountError{
		AccountID: accountID,
		Kind:      kind,
		Cause:     cause,
		Reason:    err.Error(),
	})
	metrics.AccountErrors.WithLabelValues(string(kind)).Inc()

	r.logger.Warn("account failed",
		"account", accountID,
		"kind", kind,
		"cause", cause,
		"err", err,
	)
}

// causeOf classifies a fetch failure. Store errors have no cause.
func causeOf(err error) model.ErrorKind {
	switch {
	case api.IsTransient(err):
		return model.KindTransient
	case api.IsPermanent(err):
		return model.KindPermanentRequest
	default:
		return ""
	}
}

// fail moves the run to Failed and finalizes it.
func (o *Orchestrator) fail(r *run, kind model.ErrorKind, cause error) (*model.RunSummary, error) {
	o.transition(r, StateFailed)
	return o.finish(r, kind, cause, true)
}

// finish fills in the summary, records the run outcome and returns the
// result of Run.
func (o *Orchestrator) finish(r *run, kind model.ErrorKind, cause error, persisted bool) (*model.RunSummary, error) {
	completed := o.cfg.Now()
	s := r.summary
	s.Duration = completed.Sub(r.start)

	var runErr error
	if cause != nil {
		s.Status = model.RunFailed
		s.FailureKind = kind
		s.FailureReason = cause.Error()
		runErr = fmt.Errorf("%w: %s: %w", ErrRunFailed, kind, cause)
	}

	metrics.Runs.WithLabelValues(string(s.Status)).Inc()
	metrics.RunDuration.Observe(s.Duration.Seconds())

	if persisted {
		r.record.CompletedAt = &completed
		r.record.Status = s.Status
		r.record.AccountsFetched = s.AccountsFetched
		r.record.PositionsFetched = s.PositionsFetched
		r.record.ErrorCount = len(s.Errors)
		if cause != nil {
			r.record.ErrorCount++
		}
		r.record.ErrorSummary = s.ErrorSummary(o.cfg.ErrorSummaryLimit)

		// The outcome is recorded even when the run was cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.FinalizeTimeout)
		defer cancel()
		if err := o.deps.Store.FinishRun(ctx, r.record); err != nil {
			r.logger.Error("failed to record run outcome", "err", err)
		}
	}

	if runErr != nil {
		r.logger.Error("ingest run failed",
			"kind", kind,
			"err", cause,
			"duration", s.Duration,
		)
	} else {
		r.logger.Info("ingest run completed",
			"accounts", s.AccountsFetched,
			"positions_fetched", s.PositionsFetched,
			"positions_persisted", s.PositionsPersisted,
			"errors", len(s.Errors),
			"duration", s.Duration,
		)
	}
	return s, runErr
}

func (o *Orchestrator) transition(r *run, to State) {
	from := o.State()
	if !canTransition(from, to) {
		r.logger.Error("invalid state transition", "from", from, "to", to)
		return
	}
	o.state.Store(int32(to))
	metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()

	level := slog.LevelDebug
	if to.Terminal() {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, "state transition", "from", from, "to", to)
}
