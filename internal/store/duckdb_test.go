package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/polymarket-data/internal/config"
	"github.com/rickgao/polymarket-data/internal/model"
)

func newTestDuckDB(t *testing.T) *DuckDB {
	t.Helper()
	ctx := context.Background()

	s, err := OpenDuckDB(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("OpenDuckDB() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return s
}

func testAccounts(n int, snap time.Time) []model.Account {
	out := make([]model.Account, n)
	for i := range out {
		out[i] = model.Account{
			AccountID:   fmt.Sprintf("0x%04d", i+1),
			Rank:        i + 1,
			DisplayName: fmt.Sprintf("trader-%d", i+1),
			SnapshotAt:  snap,
		}
	}
	return out
}

func testPosition(id, account string) model.ClosedPosition {
	closed := time.Date(2024, 5, 30, 18, 0, 0, 0, time.UTC)
	return model.ClosedPosition{
		PositionID:  id,
		AccountID:   account,
		MarketID:    "cond-" + id,
		Outcome:     "Yes",
		Size:        decimal.RequireFromString("150.5"),
		EntryPrice:  decimal.RequireFromString("0.42"),
		ExitPrice:   decimal.NewFromInt(1),
		PnL:         decimal.RequireFromString("87.29"),
		ClosedAt:    &closed,
		MarketSlug:  "slug-" + id,
		MarketTitle: "Title " + id,
		RawJSON:     []byte(`{"asset":"` + id + `"}`),
	}
}

func testActive(account, asset string) model.ActivePosition {
	end := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	return model.ActivePosition{
		AccountID:    account,
		Asset:        asset,
		MarketID:     "cond-" + asset,
		Outcome:      "No",
		Size:         decimal.RequireFromString("1200.5"),
		AvgPrice:     decimal.RequireFromString("0.31"),
		CurrentValue: decimal.RequireFromString("480.2"),
		CashPnL:      decimal.RequireFromString("108.045"),
		CurPrice:     decimal.RequireFromString("0.4"),
		Mergeable:    true,
		EndDate:      &end,
		MarketSlug:   "slug-" + asset,
		RawJSON:      []byte(`{"asset":"` + asset + `"}`),
	}
}

func countRows(t *testing.T, s *DuckDB, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT count(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestDuckDB_EnsureSchemaIdempotent(t *testing.T) {
	s := newTestDuckDB(t)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema() error = %v", err)
	}
}

func TestDuckDB_UpsertSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)
	snap := model.SnapshotTime(time.Date(2024, 6, 1, 12, 0, 0, 123456789, time.UTC))
	runID := uuid.New()
	accounts := testAccounts(50, snap)

	res, err := s.UpsertSnapshot(ctx, runID, accounts, snap)
	if err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}
	if res.Rows != 50 {
		t.Errorf("Rows = %d, want 50", res.Rows)
	}

	n, err := s.CountSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("CountSnapshot() error = %v", err)
	}
	if n != 50 {
		t.Errorf("CountSnapshot() = %d, want 50", n)
	}

	t.Run("replay is a no-op", func(t *testing.T) {
		if _, err := s.UpsertSnapshot(ctx, runID, accounts, snap); err != nil {
			t.Fatalf("UpsertSnapshot() error = %v", err)
		}
		if got := countRows(t, s, tableSnapshots); got != 50 {
			t.Errorf("rows = %d, want 50", got)
		}
	})

	t.Run("changed display name updates in place", func(t *testing.T) {
		changed := testAccounts(50, snap)
		changed[9].DisplayName = "renamed"
		if _, err := s.UpsertSnapshot(ctx, runID, changed, snap); err != nil {
			t.Fatalf("UpsertSnapshot() error = %v", err)
		}

		var name string
		err := s.db.QueryRow(`SELECT display_name FROM leaderboard_snapshots WHERE account_id = ?`, "0x0010").Scan(&name)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if name != "renamed" {
			t.Errorf("display_name = %q, want %q", name, "renamed")
		}
		if got := countRows(t, s, tableSnapshots); got != 50 {
			t.Errorf("rows = %d, want 50", got)
		}
	})

	t.Run("new snapshot adds rows", func(t *testing.T) {
		next := snap.Add(time.Hour)
		if _, err := s.UpsertSnapshot(ctx, uuid.New(), testAccounts(10, next), next); err != nil {
			t.Fatalf("UpsertSnapshot() error = %v", err)
		}
		if got := countRows(t, s, tableSnapshots); got != 60 {
			t.Errorf("rows = %d, want 60", got)
		}
	})
}

func TestDuckDB_UpsertSnapshotRejectsInvalidBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)
	snap := model.SnapshotTime(time.Now())

	accounts := testAccounts(5, snap)
	accounts[3].Rank = 7

	_, err := s.UpsertSnapshot(ctx, uuid.New(), accounts, snap)
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("error = %v, want ErrInvalidRow", err)
	}
	if got := countRows(t, s, tableSnapshots); got != 0 {
		t.Errorf("rows = %d, want 0", got)
	}
}

func TestDuckDB_UpsertPositions(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	batch := []model.ClosedPosition{
		testPosition("p1", "0xa"),
		testPosition("p2", "0xa"),
		testPosition("p3", "0xb"),
	}

	res, err := s.UpsertPositions(ctx, PositionBatch{Closed: batch})
	if err != nil {
		t.Fatalf("UpsertPositions() error = %v", err)
	}
	if res.Rows != 3 || res.Markets != 3 {
		t.Errorf("result = %+v, want 3 rows and 3 markets", res)
	}

	var size, pnl string
	var raw string
	err = s.db.QueryRow(`
		SELECT CAST(size AS VARCHAR), CAST(pnl AS VARCHAR), raw_json
		FROM closed_positions WHERE position_id = ?`, "p2").Scan(&size, &pnl, &raw)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !decimal.RequireFromString(size).Equal(decimal.RequireFromString("150.5")) {
		t.Errorf("size = %s, want 150.5", size)
	}
	if !decimal.RequireFromString(pnl).Equal(decimal.RequireFromString("87.29")) {
		t.Errorf("pnl = %s, want 87.29", pnl)
	}
	if raw != `{"asset":"p2"}` {
		t.Errorf("raw_json = %s", raw)
	}

	var slug, title string
	if err := s.db.QueryRow(`SELECT slug, title FROM markets WHERE market_id = ?`, "cond-p3").Scan(&slug, &title); err != nil {
		t.Fatalf("query market: %v", err)
	}
	if slug != "slug-p3" || title != "Title p3" {
		t.Errorf("market = (%q, %q)", slug, title)
	}

	t.Run("replay is a no-op", func(t *testing.T) {
		if _, err := s.UpsertPositions(ctx, PositionBatch{Closed: batch}); err != nil {
			t.Fatalf("UpsertPositions() error = %v", err)
		}
		if got := countRows(t, s, tablePositions); got != 3 {
			t.Errorf("positions = %d, want 3", got)
		}
		if got := countRows(t, s, tableMarkets); got != 3 {
			t.Errorf("markets = %d, want 3", got)
		}
	})

	t.Run("changed pnl updates in place", func(t *testing.T) {
		p := testPosition("p1", "0xa")
		p.PnL = decimal.RequireFromString("-12.5")
		if _, err := s.UpsertPositions(ctx, PositionBatch{Closed: []model.ClosedPosition{p}}); err != nil {
			t.Fatalf("UpsertPositions() error = %v", err)
		}

		var pnl string
		if err := s.db.QueryRow(`SELECT CAST(pnl AS VARCHAR) FROM closed_positions WHERE position_id = ?`, "p1").Scan(&pnl); err != nil {
			t.Fatalf("query: %v", err)
		}
		if !decimal.RequireFromString(pnl).Equal(decimal.RequireFromString("-12.5")) {
			t.Errorf("pnl = %s, want -12.5", pnl)
		}
		if got := countRows(t, s, tablePositions); got != 3 {
			t.Errorf("positions = %d, want 3", got)
		}
	})

	t.Run("market without slug keeps existing slug", func(t *testing.T) {
		p := testPosition("p4", "0xb")
		p.MarketID = "cond-p3"
		p.MarketSlug = ""
		p.MarketTitle = ""
		if _, err := s.UpsertPositions(ctx, PositionBatch{Closed: []model.ClosedPosition{p}}); err != nil {
			t.Fatalf("UpsertPositions() error = %v", err)
		}

		var slug string
		if err := s.db.QueryRow(`SELECT slug FROM markets WHERE market_id = ?`, "cond-p3").Scan(&slug); err != nil {
			t.Fatalf("query market: %v", err)
		}
		if slug != "slug-p3" {
			t.Errorf("slug = %q, want %q", slug, "slug-p3")
		}
	})
}

func TestDuckDB_UpsertActivePositions(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	batch := PositionBatch{
		Closed: []model.ClosedPosition{testPosition("p1", "0xa")},
		Active: []model.ActivePosition{testActive("0xa", "t1"), testActive("0xa", "t2")},
	}

	res, err := s.UpsertPositions(ctx, batch)
	if err != nil {
		t.Fatalf("UpsertPositions() error = %v", err)
	}
	if res.Rows != 1 || res.Active != 2 || res.Markets != 3 {
		t.Errorf("result = %+v, want 1 closed, 2 active and 3 markets", res)
	}
	if res.Changed != 6 {
		t.Errorf("Changed = %d, want 6", res.Changed)
	}

	var size, cash string
	var mergeable bool
	err = s.db.QueryRow(`
		SELECT CAST(size AS VARCHAR), CAST(cash_pnl AS VARCHAR), mergeable
		FROM active_positions WHERE account_id = ? AND asset = ?`, "0xa", "t2").Scan(&size, &cash, &mergeable)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !decimal.RequireFromString(size).Equal(decimal.RequireFromString("1200.5")) {
		t.Errorf("size = %s, want 1200.5", size)
	}
	if !decimal.RequireFromString(cash).Equal(decimal.RequireFromString("108.045")) {
		t.Errorf("cash_pnl = %s, want 108.045", cash)
	}
	if !mergeable {
		t.Error("mergeable = false, want true")
	}

	t.Run("replay keeps one row per key", func(t *testing.T) {
		if _, err := s.UpsertPositions(ctx, batch); err != nil {
			t.Fatalf("UpsertPositions() error = %v", err)
		}
		if got := countRows(t, s, "active_positions"); got != 2 {
			t.Errorf("rows = %d, want 2", got)
		}
	})

	t.Run("update in place", func(t *testing.T) {
		moved := testActive("0xa", "t1")
		moved.Size = decimal.NewFromInt(10)
		if _, err := s.UpsertPositions(ctx, PositionBatch{Active: []model.ActivePosition{moved}}); err != nil {
			t.Fatalf("UpsertPositions() error = %v", err)
		}
		if got := countRows(t, s, "active_positions"); got != 2 {
			t.Errorf("rows = %d, want 2", got)
		}

		var size string
		err := s.db.QueryRow(`SELECT CAST(size AS VARCHAR) FROM active_positions WHERE asset = ?`, "t1").Scan(&size)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if !decimal.RequireFromString(size).Equal(decimal.NewFromInt(10)) {
			t.Errorf("size = %s, want 10", size)
		}
	})
}

func TestDuckDB_UpsertActiveDuplicateKeysInBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	first := testActive("0xa", "t1")
	last := testActive("0xa", "t1")
	last.Size = decimal.NewFromInt(7)

	res, err := s.UpsertPositions(ctx, PositionBatch{Active: []model.ActivePosition{first, last}})
	if err != nil {
		t.Fatalf("UpsertPositions() error = %v", err)
	}
	if res.Active != 1 {
		t.Errorf("Active = %d, want 1", res.Active)
	}

	var size string
	if err := s.db.QueryRow(`SELECT CAST(size AS VARCHAR) FROM active_positions`).Scan(&size); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !decimal.RequireFromString(size).Equal(decimal.NewFromInt(7)) {
		t.Errorf("size = %s, want 7", size)
	}
}

func TestDuckDB_InvalidActiveRowWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	bad := testActive("0xa", "t2")
	bad.RawJSON = []byte(`{`)
	batch := PositionBatch{
		Closed: []model.ClosedPosition{testPosition("p1", "0xa")},
		Active: []model.ActivePosition{testActive("0xa", "t1"), bad},
	}

	if _, err := s.UpsertPositions(ctx, batch); !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("error = %v, want ErrInvalidRow", err)
	}
	for _, table := range []string{tablePositions, "active_positions", tableMarkets} {
		if got := countRows(t, s, table); got != 0 {
			t.Errorf("%s rows = %d, want 0", table, got)
		}
	}
}

func TestDuckDB_UpsertPositionsDuplicateKeysInBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	first := testPosition("p1", "0xa")
	last := testPosition("p1", "0xa")
	last.Outcome = "No"

	res, err := s.UpsertPositions(ctx, PositionBatch{Closed: []model.ClosedPosition{first, testPosition("p2", "0xa"), last}})
	if err != nil {
		t.Fatalf("UpsertPositions() error = %v", err)
	}
	if res.Rows != 2 {
		t.Errorf("Rows = %d, want 2", res.Rows)
	}

	var outcome string
	if err := s.db.QueryRow(`SELECT outcome FROM closed_positions WHERE position_id = ?`, "p1").Scan(&outcome); err != nil {
		t.Fatalf("query: %v", err)
	}
	if outcome != "No" {
		t.Errorf("outcome = %q, want %q", outcome, "No")
	}
}

func TestDuckDB_UpsertPositionsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	batch := make([]model.ClosedPosition, 0, 20)
	for i := range 20 {
		batch = append(batch, testPosition(fmt.Sprintf("p%02d", i), "0xa"))
	}
	batch[13].RawJSON = []byte(`{"broken":`)

	_, err := s.UpsertPositions(ctx, PositionBatch{Closed: batch})
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("error = %v, want ErrInvalidRow", err)
	}
	if got := countRows(t, s, tablePositions); got != 0 {
		t.Errorf("positions = %d, want 0", got)
	}
	if got := countRows(t, s, tableMarkets); got != 0 {
		t.Errorf("markets = %d, want 0", got)
	}
}

func TestDuckDB_UpsertPositionsRollsBackOnStatementFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	// Passes validation, but the database rejects the oversized decimal
	// after earlier rows in the transaction were written.
	batch := []model.ClosedPosition{testPosition("a", "0xa"), testPosition("b", "0xa"), testPosition("c", "0xa")}
	batch[2].Size = decimal.RequireFromString("1e40")

	if _, err := s.UpsertPositions(ctx, PositionBatch{Closed: batch}); err == nil {
		t.Fatal("expected error for out-of-range decimal")
	}
	if got := countRows(t, s, tablePositions); got != 0 {
		t.Errorf("positions = %d, want 0", got)
	}
	if got := countRows(t, s, tableMarkets); got != 0 {
		t.Errorf("markets = %d, want 0", got)
	}
}

func TestDuckDB_ConcurrentDisjointBatches(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account := fmt.Sprintf("0x%d", w)
			batch := []model.ClosedPosition{
				testPosition(account+"-1", account),
				testPosition(account+"-2", account),
			}
			if _, err := s.UpsertPositions(ctx, PositionBatch{Closed: batch}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("UpsertPositions() error = %v", err)
	}
	if got := countRows(t, s, tablePositions); got != 16 {
		t.Errorf("positions = %d, want 16", got)
	}
}

func TestDuckDB_Runs(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	run := model.IngestRun{ID: uuid.New(), StartedAt: started, Status: model.RunRunning}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != model.RunRunning || got.CompletedAt != nil {
		t.Errorf("run = %+v, want running with no completion time", got)
	}

	completed := started.Add(90 * time.Second)
	run.CompletedAt = &completed
	run.Status = model.RunCompleted
	run.AccountsFetched = 500
	run.PositionsFetched = 1000
	run.ErrorCount = 1
	run.ErrorSummary = "X Account-Isolated: not found"
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err = s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("ID = %s, want %s", got.ID, run.ID)
	}
	if got.Status != model.RunCompleted {
		t.Errorf("Status = %s, want %s", got.Status, model.RunCompleted)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
	if got.AccountsFetched != 500 || got.PositionsFetched != 1000 || got.ErrorCount != 1 {
		t.Errorf("counts = (%d, %d, %d)", got.AccountsFetched, got.PositionsFetched, got.ErrorCount)
	}
	if got.ErrorSummary != run.ErrorSummary {
		t.Errorf("ErrorSummary = %q, want %q", got.ErrorSummary, run.ErrorSummary)
	}

	t.Run("unknown run", func(t *testing.T) {
		if _, err := s.GetRun(ctx, uuid.New()); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
		}
		if err := s.FinishRun(ctx, model.IngestRun{ID: uuid.New(), Status: model.RunFailed}); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
		}
	})
}

func TestDuckDB_Stats(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)
	snap := model.SnapshotTime(time.Now())

	if _, err := s.UpsertSnapshot(ctx, uuid.New(), testAccounts(3, snap), snap); err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}
	if _, err := s.UpsertPositions(ctx, PositionBatch{Closed: []model.ClosedPosition{testPosition("p1", "0x0001")}}); err != nil {
		t.Fatalf("UpsertPositions() error = %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := Stats{Snapshots: 3, Positions: 1, Active: 0, Markets: 1, Runs: 0}
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("duckdb", func(t *testing.T) {
		s, err := Open(ctx, config.StoreConfig{Driver: "duckdb", DuckDB: config.DuckDBConfig{Path: t.TempDir() + "/ingest.duckdb"}}, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer s.Close()
		if err := s.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema() error = %v", err)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, config.StoreConfig{Driver: "sqlite"}, nil)
		if !errors.Is(err, ErrUnknownDriver) {
			t.Errorf("Open() error = %v, want ErrUnknownDriver", err)
		}
	})
}
