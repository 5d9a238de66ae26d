package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/polymarket-data/internal/metrics"
	"github.com/rickgao/polymarket-data/internal/model"
)

const (
	pgUpsertSnapshot = `
		INSERT INTO leaderboard_snapshots (account_id, snapshot_at, rank, display_name, run_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, snapshot_at) DO UPDATE SET
			rank = EXCLUDED.rank,
			display_name = EXCLUDED.display_name,
			run_id = EXCLUDED.run_id
		WHERE leaderboard_snapshots.rank IS DISTINCT FROM EXCLUDED.rank
			OR leaderboard_snapshots.display_name IS DISTINCT FROM EXCLUDED.display_name
			OR leaderboard_snapshots.run_id IS DISTINCT FROM EXCLUDED.run_id`

	pgUpsertMarket = `
		INSERT INTO markets (market_id, slug, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id) DO UPDATE SET
			slug = COALESCE(EXCLUDED.slug, markets.slug),
			title = COALESCE(EXCLUDED.title, markets.title)
		WHERE markets.slug IS DISTINCT FROM COALESCE(EXCLUDED.slug, markets.slug)
			OR markets.title IS DISTINCT FROM COALESCE(EXCLUDED.title, markets.title)`

	pgUpsertPosition = `
		INSERT INTO closed_positions (position_id, account_id, market_id, outcome, size, entry_price, exit_price, pnl, closed_at, raw_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (position_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			market_id = EXCLUDED.market_id,
			outcome = EXCLUDED.outcome,
			size = EXCLUDED.size,
			entry_price = EXCLUDED.entry_price,
			exit_price = EXCLUDED.exit_price,
			pnl = EXCLUDED.pnl,
			closed_at = EXCLUDED.closed_at,
			raw_json = EXCLUDED.raw_json
		WHERE closed_positions.account_id IS DISTINCT FROM EXCLUDED.account_id
			OR closed_positions.market_id IS DISTINCT FROM EXCLUDED.market_id
			OR closed_positions.outcome IS DISTINCT FROM EXCLUDED.outcome
			OR closed_positions.size IS DISTINCT FROM EXCLUDED.size
			OR closed_positions.entry_price IS DISTINCT FROM EXCLUDED.entry_price
			OR closed_positions.exit_price IS DISTINCT FROM EXCLUDED.exit_price
			OR closed_positions.pnl IS DISTINCT FROM EXCLUDED.pnl
			OR closed_positions.closed_at IS DISTINCT FROM EXCLUDED.closed_at
			OR closed_positions.raw_json IS DISTINCT FROM EXCLUDED.raw_json`

	pgUpsertActive = `
		INSERT INTO active_positions (account_id, asset, market_id, outcome, size, avg_price, initial_value, current_value, cash_pnl, percent_pnl, realized_pnl, cur_price, redeemable, mergeable, end_date, raw_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (account_id, asset) DO UPDATE SET
			market_id = EXCLUDED.market_id,
			outcome = EXCLUDED.outcome,
			size = EXCLUDED.size,
			avg_price = EXCLUDED.avg_price,
			initial_value = EXCLUDED.initial_value,
			current_value = EXCLUDED.current_value,
			cash_pnl = EXCLUDED.cash_pnl,
			percent_pnl = EXCLUDED.percent_pnl,
			realized_pnl = EXCLUDED.realized_pnl,
			cur_price = EXCLUDED.cur_price,
			redeemable = EXCLUDED.redeemable,
			mergeable = EXCLUDED.mergeable,
			end_date = EXCLUDED.end_date,
			raw_json = EXCLUDED.raw_json
		WHERE active_positions.market_id IS DISTINCT FROM EXCLUDED.market_id
			OR active_positions.outcome IS DISTINCT FROM EXCLUDED.outcome
			OR active_positions.size IS DISTINCT FROM EXCLUDED.size
			OR active_positions.avg_price IS DISTINCT FROM EXCLUDED.avg_price
			OR active_positions.initial_value IS DISTINCT FROM EXCLUDED.initial_value
			OR active_positions.current_value IS DISTINCT FROM EXCLUDED.current_value
			OR active_positions.cash_pnl IS DISTINCT FROM EXCLUDED.cash_pnl
			OR active_positions.percent_pnl IS DISTINCT FROM EXCLUDED.percent_pnl
			OR active_positions.realized_pnl IS DISTINCT FROM EXCLUDED.realized_pnl
			OR active_positions.cur_price IS DISTINCT FROM EXCLUDED.cur_price
			OR active_positions.redeemable IS DISTINCT FROM EXCLUDED.redeemable
			OR active_positions.mergeable IS DISTINCT FROM EXCLUDED.mergeable
			OR active_positions.end_date IS DISTINCT FROM EXCLUDED.end_date
			OR active_positions.raw_json IS DISTINCT FROM EXCLUDED.raw_json`

	pgInsertRun = `
		INSERT INTO ingest_runs (run_id, started_at, status)
		VALUES ($1, $2, $3)`

	pgFinishRun = `
		UPDATE ingest_runs SET
			completed_at = $2,
			status = $3,
			accounts_fetched = $4,
			positions_fetched = $5,
			error_count = $6,
			error_summary = $7
		WHERE run_id = $1`

	pgGetRun = `
		SELECT run_id, started_at, completed_at, status, accounts_fetched, positions_fetched, error_count, COALESCE(error_summary, '')
		FROM ingest_runs WHERE run_id = $1`
)

// Postgres is the PostgreSQL Store backend.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres store on an open pool. The store owns the pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// EnsureSchema creates missing tables and indexes.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertSnapshot writes one leaderboard snapshot in a single transaction.
func (s *Postgres) UpsertSnapshot(ctx context.Context, runID uuid.UUID, accounts []model.Account, snapshotAt time.Time) (WriteResult, error) {
	if err := validateSnapshot(accounts, snapshotAt); err != nil {
		metrics.BatchFailures.WithLabelValues(tableSnapshots).Inc()
		return WriteResult{}, err
	}

	batch := &pgx.Batch{}
	for _, a := range accounts {
		batch.Queue(pgUpsertSnapshot, a.AccountID, snapshotAt, a.Rank, nullString(a.DisplayName), runID)
	}

	changed, err := s.inTx(ctx, batch)
	if err != nil {
		metrics.BatchFailures.WithLabelValues(tableSnapshots).Inc()
		return WriteResult{}, fmt.Errorf("upsert snapshot: %w", err)
	}
	metrics.RowsUpserted.WithLabelValues(tableSnapshots).Add(float64(changed))

	return WriteResult{Rows: len(accounts), Changed: changed}, nil
}

// UpsertPositions writes one account's positions and their markets in a
// single transaction.
func (s *Postgres) UpsertPositions(ctx context.Context, batch PositionBatch) (WriteResult, error) {
	rows, err := prepareBatch(batch)
	if err != nil {
		metrics.BatchFailures.WithLabelValues(tablePositions).Inc()
		return WriteResult{}, err
	}
	markets := marketsOf(rows.Closed, rows.Active)

	b := &pgx.Batch{}
	for _, m := range markets {
		b.Queue(pgUpsertMarket, m.MarketID, nullString(m.Slug), nullString(m.Title))
	}
	for _, p := range rows.Closed {
		b.Queue(pgUpsertPosition,
			p.PositionID, p.AccountID, nullString(p.MarketID), nullString(p.Outcome),
			p.Size, p.EntryPrice, p.ExitPrice, p.PnL,
			p.ClosedAt, nullJSON(p.RawJSON),
		)
	}
	for _, p := range rows.Active {
		b.Queue(pgUpsertActive,
			p.AccountID, p.Asset, nullString(p.MarketID), nullString(p.Outcome),
			p.Size, p.AvgPrice, p.InitialValue, p.CurrentValue,
			p.CashPnL, p.PercentPnL, p.RealizedPnL, p.CurPrice,
			p.Redeemable, p.Mergeable, p.EndDate, nullJSON(p.RawJSON),
		)
	}

	changed, err := s.inTx(ctx, b)
	if err != nil {
		metrics.BatchFailures.WithLabelValues(tablePositions).Inc()
		return WriteResult{}, fmt.Errorf("upsert positions: %w", err)
	}
	metrics.RowsUpserted.WithLabelValues(tablePositions).Add(float64(changed))

	return WriteResult{
		Rows:    len(rows.Closed),
		Active:  len(rows.Active),
		Changed: changed,
		Markets: len(markets),
	}, nil
}

// inTx sends batch inside one transaction and returns the total rows affected.
func (s *Postgres) inTx(ctx context.Context, batch *pgx.Batch) (int64, error) {
	if batch.Len() == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	results := tx.SendBatch(ctx, batch)
	var affected int64
	for i := 0; i < batch.Len(); i++ {
		ct, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("statement %d: %w", i, err)
		}
		affected += ct.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return affected, nil
}

// CreateRun inserts a new ingest run.
func (s *Postgres) CreateRun(ctx context.Context, run model.IngestRun) error {
	if _, err := s.pool.Exec(ctx, pgInsertRun, run.ID, run.StartedAt, string(run.Status)); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the final state of an ingest run.
func (s *Postgres) FinishRun(ctx context.Context, run model.IngestRun) error {
	ct, err := s.pool.Exec(ctx, pgFinishRun,
		run.ID, run.CompletedAt, string(run.Status),
		run.AccountsFetched, run.PositionsFetched, run.ErrorCount, nullString(run.ErrorSummary),
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

// GetRun loads an ingest run.
func (s *Postgres) GetRun(ctx context.Context, id uuid.UUID) (model.IngestRun, error) {
	var (
		run    model.IngestRun
		status string
	)
	err := s.pool.QueryRow(ctx, pgGetRun, id).Scan(
		&run.ID, &run.StartedAt, &run.CompletedAt, &status,
		&run.AccountsFetched, &run.PositionsFetched, &run.ErrorCount, &run.ErrorSummary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.IngestRun{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return model.IngestRun{}, fmt.Errorf("get run %s: %w", id, err)
	}
	run.Status = model.RunStatus(status)
	return run, nil
}

// CountSnapshot returns the number of accounts stored for snapshotAt.
func (s *Postgres) CountSnapshot(ctx context.Context, snapshotAt time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM leaderboard_snapshots WHERE snapshot_at = $1`, snapshotAt,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshot: %w", err)
	}
	return n, nil
}

// Stats returns table row counts.
func (s *Postgres) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, statsQuery).Scan(&st.Snapshots, &st.Positions, &st.Active, &st.Markets, &st.Runs)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Close closes the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

const statsQuery = `
	SELECT
		(SELECT count(*) FROM leaderboard_snapshots),
		(SELECT count(*) FROM closed_positions),
		(SELECT count(*) FROM active_positions),
		(SELECT count(*) FROM markets),
		(SELECT count(*) FROM ingest_runs)`
