package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/rickgao/polymarket-data/internal/metrics"
	"github.com/rickgao/polymarket-data/internal/model"
)

// DuckDB's ON CONFLICT update binds unqualified columns to the existing row.
const (
	duckUpsertSnapshot = `
		INSERT INTO leaderboard_snapshots (account_id, snapshot_at, rank, display_name, run_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, snapshot_at) DO UPDATE SET
			rank = excluded.rank,
			display_name = excluded.display_name,
			run_id = excluded.run_id
		WHERE rank IS DISTINCT FROM excluded.rank
			OR display_name IS DISTINCT FROM excluded.display_name
			OR run_id IS DISTINCT FROM excluded.run_id`

	duckUpsertMarket = `
		INSERT INTO markets (market_id, slug, title)
		VALUES (?, ?, ?)
		ON CONFLICT (market_id) DO UPDATE SET
			slug = COALESCE(excluded.slug, slug),
			title = COALESCE(excluded.title, title)
		WHERE slug IS DISTINCT FROM COALESCE(excluded.slug, slug)
			OR title IS DISTINCT FROM COALESCE(excluded.title, title)`

	duckUpsertPosition = `
		INSERT INTO closed_positions (position_id, account_id, market_id, outcome, size, entry_price, exit_price, pnl, closed_at, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (position_id) DO UPDATE SET
			account_id = excluded.account_id,
			market_id = excluded.market_id,
			outcome = excluded.outcome,
			size = excluded.size,
			entry_price = excluded.entry_price,
			exit_price = excluded.exit_price,
			pnl = excluded.pnl,
			closed_at = excluded.closed_at,
			raw_json = excluded.raw_json
		WHERE account_id IS DISTINCT FROM excluded.account_id
			OR market_id IS DISTINCT FROM excluded.market_id
			OR outcome IS DISTINCT FROM excluded.outcome
			OR size IS DISTINCT FROM excluded.size
			OR entry_price IS DISTINCT FROM excluded.entry_price
			OR exit_price IS DISTINCT FROM excluded.exit_price
			OR pnl IS DISTINCT FROM excluded.pnl
			OR closed_at IS DISTINCT FROM excluded.closed_at
			OR raw_json IS DISTINCT FROM excluded.raw_json`

	duckUpsertActive = `
		INSERT INTO active_positions (account_id, asset, market_id, outcome, size, avg_price, initial_value, current_value, cash_pnl, percent_pnl, realized_pnl, cur_price, redeemable, mergeable, end_date, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, asset) DO UPDATE SET
			market_id = excluded.market_id,
			outcome = excluded.outcome,
			size = excluded.size,
			avg_price = excluded.avg_price,
			initial_value = excluded.initial_value,
			current_value = excluded.current_value,
			cash_pnl = excluded.cash_pnl,
			percent_pnl = excluded.percent_pnl,
			realized_pnl = excluded.realized_pnl,
			cur_price = excluded.cur_price,
			redeemable = excluded.redeemable,
			mergeable = excluded.mergeable,
			end_date = excluded.end_date,
			raw_json = excluded.raw_json
		WHERE market_id IS DISTINCT FROM excluded.market_id
			OR outcome IS DISTINCT FROM excluded.outcome
			OR size IS DISTINCT FROM excluded.size
			OR avg_price IS DISTINCT FROM excluded.avg_price
			OR initial_value IS DISTINCT FROM excluded.initial_value
			OR current_value IS DISTINCT FROM excluded.current_value
			OR cash_pnl IS DISTINCT FROM excluded.cash_pnl
			OR percent_pnl IS DISTINCT FROM excluded.percent_pnl
			OR realized_pnl IS DISTINCT FROM excluded.realized_pnl
			OR cur_price IS DISTINCT FROM excluded.cur_price
			OR redeemable IS DISTINCT FROM excluded.redeemable
			OR mergeable IS DISTINCT FROM excluded.mergeable
			OR end_date IS DISTINCT FROM excluded.end_date
			OR raw_json IS DISTINCT FROM excluded.raw_json`

	duckInsertRun = `
		INSERT INTO ingest_runs (run_id, started_at, status)
		VALUES (?, ?, ?)`

	duckFinishRun = `
		UPDATE ingest_runs SET
			completed_at = ?,
			status = ?,
			accounts_fetched = ?,
			positions_fetched = ?,
			error_count = ?,
			error_summary = ?
		WHERE run_id = ?`

	duckGetRun = `
		SELECT run_id, started_at, completed_at, status, accounts_fetched, positions_fetched, error_count, COALESCE(error_summary, '')
		FROM ingest_runs WHERE run_id = ?`
)

// DuckDB is the embedded Store backend. DuckDB admits a single writer, so
// write transactions are serialized; reads run concurrently.
type DuckDB struct {
	db     *sql.DB
	logger *slog.Logger

	writeMu sync.Mutex
}

// OpenDuckDB opens the database at path. An empty path or ":memory:" opens
// an in-memory database.
func OpenDuckDB(ctx context.Context, path string, logger *slog.Logger) (*DuckDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	logger.Debug("opened duckdb", "path", path)
	return &DuckDB{db: db, logger: logger}, nil
}

// EnsureSchema creates missing tables.
func (s *DuckDB) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, stmt := range duckdbSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertSnapshot writes one leaderboard snapshot in a single transaction.
func (s *DuckDB) UpsertSnapshot(ctx context.Context, runID uuid.UUID, accounts []model.Account, snapshotAt time.Time) (WriteResult, error) {
	if err := validateSnapshot(accounts, snapshotAt); err != nil {
		metrics.BatchFailures.WithLabelValues(tableSnapshots).Inc()
		return WriteResult{}, err
	}

	changed, err := s.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		stmt, err := tx.PrepareContext(ctx, duckUpsertSnapshot)
		if err != nil {
			return 0, fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		var n int64
		for _, a := range accounts {
			res, err := stmt.ExecContext(ctx, a.AccountID, snapshotAt.UTC(), a.Rank, nullString(a.DisplayName), runID.String())
			if err != nil {
				return 0, fmt.Errorf("account %s: %w", a.AccountID, err)
			}
			n += rowsAffected(res)
		}
		return n, nil
	})
	if err != nil {
		metrics.BatchFailures.WithLabelValues(tableSnapshots).Inc()
		return WriteResult{}, fmt.Errorf("upsert snapshot: %w", err)
	}
	metrics.RowsUpserted.WithLabelValues(tableSnapshots).Add(float64(changed))

	return WriteResult{Rows: len(accounts), Changed: changed}, nil
}

// UpsertPositions writes one account's positions and their markets in a
// single transaction.
func (s *DuckDB) UpsertPositions(ctx context.Context, batch PositionBatch) (WriteResult, error) {
	rows, err := prepareBatch(batch)
	if err != nil {
		metrics.BatchFailures.WithLabelValues(tablePositions).Inc()
		return WriteResult{}, err
	}
	markets := marketsOf(rows.Closed, rows.Active)

	changed, err := s.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		var n int64
		for _, m := range markets {
			res, err := tx.ExecContext(ctx, duckUpsertMarket, m.MarketID, nullString(m.Slug), nullString(m.Title))
			if err != nil {
				return 0, fmt.Errorf("market %s: %w", m.MarketID, err)
			}
			n += rowsAffected(res)
		}

		closed, err := execEach(ctx, tx, duckUpsertPosition, rows.Closed, func(p model.ClosedPosition) (string, []any) {
			return p.PositionID, []any{
				p.PositionID, p.AccountID, nullString(p.MarketID), nullString(p.Outcome),
				p.Size.String(), p.EntryPrice.String(), p.ExitPrice.String(), p.PnL.String(),
				nullTime(p.ClosedAt), nullJSON(p.RawJSON),
			}
		})
		if err != nil {
			return 0, err
		}

		active, err := execEach(ctx, tx, duckUpsertActive, rows.Active, func(p model.ActivePosition) (string, []any) {
			return p.AccountID + ":" + p.Asset, []any{
				p.AccountID, p.Asset, nullString(p.MarketID), nullString(p.Outcome),
				p.Size.String(), p.AvgPrice.String(), p.InitialValue.String(), p.CurrentValue.String(),
				p.CashPnL.String(), p.PercentPnL.String(), p.RealizedPnL.String(), p.CurPrice.String(),
				p.Redeemable, p.Mergeable, nullTime(p.EndDate), nullJSON(p.RawJSON),
			}
		})
		if err != nil {
			return 0, err
		}
		return n + closed + active, nil
	})
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

// execEach runs one prepared statement per row and returns the rows affected.
func execEach[T any](ctx context.Context, tx *sql.Tx, query string, rows []T, args func(T) (string, []any)) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, row := range rows {
		key, vals := args(row)
		res, err := stmt.ExecContext(ctx, vals...)
		if err != nil {
			return 0, fmt.Errorf("position %s: %w", key, err)
		}
		n += rowsAffected(res)
	}
	return n, nil
}

func (s *DuckDB) inTx(ctx context.Context, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}

	n, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "err", rbErr)
		}
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// CreateRun inserts a new ingest run.
func (s *DuckDB) CreateRun(ctx context.Context, run model.IngestRun) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, duckInsertRun, run.ID.String(), run.StartedAt.UTC(), string(run.Status)); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the final state of an ingest run.
func (s *DuckDB) FinishRun(ctx context.Context, run model.IngestRun) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, duckFinishRun,
		nullTime(run.CompletedAt), string(run.Status),
		run.AccountsFetched, run.PositionsFetched, run.ErrorCount, nullString(run.ErrorSummary),
		run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if rowsAffected(res) == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

// GetRun loads an ingest run.
func (s *DuckDB) GetRun(ctx context.Context, id uuid.UUID) (model.IngestRun, error) {
	var (
		run       model.IngestRun
		rawID     string
		status    string
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, duckGetRun, id.String()).Scan(
		&rawID, &run.StartedAt, &completed, &status,
		&run.AccountsFetched, &run.PositionsFetched, &run.ErrorCount, &run.ErrorSummary,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IngestRun{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return model.IngestRun{}, fmt.Errorf("get run %s: %w", id, err)
	}

	if run.ID, err = uuid.Parse(rawID); err != nil {
		return model.IngestRun{}, fmt.Errorf("get run %s: parse id: %w", id, err)
	}
	run.Status = model.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// CountSnapshot returns the number of accounts stored for snapshotAt.
func (s *DuckDB) CountSnapshot(ctx context.Context, snapshotAt time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM leaderboard_snapshots WHERE snapshot_at = ?`, snapshotAt.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshot: %w", err)
	}
	return n, nil
}

// Stats returns table row counts.
func (s *DuckDB) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, statsQuery).Scan(&st.Snapshots, &st.Positions, &st.Active, &st.Markets, &st.Runs)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Close closes the database.
func (s *DuckDB) Close() error {
	return s.db.Close()
}
