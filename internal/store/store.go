package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/polymarket-data/internal/config"
	"github.com/rickgao/polymarket-data/internal/database"
	"github.com/rickgao/polymarket-data/internal/model"
)

var (
	// ErrInvalidRow is returned when a batch contains a row that cannot be
	// stored. Nothing from the batch is written.
	ErrInvalidRow = errors.New("invalid row")

	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown store driver")

	// ErrRunNotFound is returned when an ingest run does not exist.
	ErrRunNotFound = errors.New("ingest run not found")
)

// Table names, also used as metric labels.
const (
	tableSnapshots = "leaderboard_snapshots"
	tablePositions = "closed_positions"
	tableMarkets   = "markets"
	tableRuns      = "ingest_runs"
)

// PositionBatch is one account's closed and active positions. Both are
// written in the same transaction.
type PositionBatch struct {
	Closed []model.ClosedPosition
	Active []model.ActivePosition
}

// WriteResult describes one committed batch.
type WriteResult struct {
	Rows    int   // Distinct rows in the batch after collapsing duplicate keys
	Active  int   // Distinct active positions after collapsing duplicate keys
	Changed int64 // Rows inserted or updated; unchanged rows are not rewritten
	Markets int   // Distinct markets upserted alongside positions
}

// Stats holds table row counts.
type Stats struct {
	Snapshots int
	Positions int
	Active    int
	Markets   int
	Runs      int
}

// Store is the transactional upsert store used by the ingest pipeline.
type Store interface {
	// EnsureSchema creates missing tables and indexes.
	EnsureSchema(ctx context.Context) error

	// UpsertSnapshot writes one leaderboard snapshot. Ranks must be unique
	// and contiguous from 1 and every account must carry snapshotAt.
	UpsertSnapshot(ctx context.Context, runID uuid.UUID, accounts []model.Account, snapshotAt time.Time) (WriteResult, error)

	// UpsertPositions writes closed positions, active positions and the
	// markets they reference.
	UpsertPositions(ctx context.Context, batch PositionBatch) (WriteResult, error)

	CreateRun(ctx context.Context, run model.IngestRun) error
	FinishRun(ctx context.Context, run model.IngestRun) error
	GetRun(ctx context.Context, id uuid.UUID) (model.IngestRun, error)

	// CountSnapshot returns the number of accounts stored for snapshotAt.
	CountSnapshot(ctx context.Context, snapshotAt time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewPostgres(pool, logger), nil
	case "duckdb":
		return OpenDuckDB(ctx, cfg.DuckDB.Path, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
