package store

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS markets (
		market_id TEXT PRIMARY KEY,
		slug      TEXT,
		title     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS closed_positions (
		position_id TEXT PRIMARY KEY,
		account_id  TEXT NOT NULL,
		market_id   TEXT,
		outcome     TEXT,
		size        NUMERIC NOT NULL DEFAULT 0,
		entry_price NUMERIC NOT NULL DEFAULT 0,
		exit_price  NUMERIC NOT NULL DEFAULT 0,
		pnl         NUMERIC NOT NULL DEFAULT 0,
		closed_at   TIMESTAMPTZ,
		raw_json    JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_closed_positions_account ON closed_positions (account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_closed_positions_market ON closed_positions (market_id)`,
	`CREATE TABLE IF NOT EXISTS active_positions (
		account_id    TEXT NOT NULL,
		asset         TEXT NOT NULL,
		market_id     TEXT,
		outcome       TEXT,
		size          NUMERIC NOT NULL DEFAULT 0,
		avg_price     NUMERIC NOT NULL DEFAULT 0,
		initial_value NUMERIC NOT NULL DEFAULT 0,
		current_value NUMERIC NOT NULL DEFAULT 0,
		cash_pnl      NUMERIC NOT NULL DEFAULT 0,
		percent_pnl   NUMERIC NOT NULL DEFAULT 0,
		realized_pnl  NUMERIC NOT NULL DEFAULT 0,
		cur_price     NUMERIC NOT NULL DEFAULT 0,
		redeemable    BOOLEAN NOT NULL DEFAULT FALSE,
		mergeable     BOOLEAN NOT NULL DEFAULT FALSE,
		end_date      TIMESTAMPTZ,
		raw_json      JSONB,
		PRIMARY KEY (account_id, asset)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_active_positions_market ON active_positions (market_id)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		run_id            UUID PRIMARY KEY,
		started_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ,
		status            TEXT NOT NULL,
		accounts_fetched  INTEGER NOT NULL DEFAULT 0,
		positions_fetched INTEGER NOT NULL DEFAULT 0,
		error_count       INTEGER NOT NULL DEFAULT 0,
		error_summary     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
		account_id   TEXT NOT NULL,
		snapshot_at  TIMESTAMPTZ NOT NULL,
		rank         INTEGER NOT NULL CHECK (rank >= 1),
		display_name TEXT,
		run_id       UUID,
		PRIMARY KEY (account_id, snapshot_at),
		UNIQUE (snapshot_at, rank)
	)`,
}

// DuckDB rewrites a row on update by delete and insert, so a second unique
// constraint can spuriously conflict inside one transaction. Rank uniqueness
// is enforced by validateSnapshot instead.
var duckdbSchema = []string{
	`CREATE TABLE IF NOT EXISTS markets (
		market_id VARCHAR PRIMARY KEY,
		slug      VARCHAR,
		title     VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS closed_positions (
		position_id VARCHAR PRIMARY KEY,
		account_id  VARCHAR NOT NULL,
		market_id   VARCHAR,
		outcome     VARCHAR,
		size        DECIMAL(38, 18) NOT NULL DEFAULT 0,
		entry_price DECIMAL(38, 18) NOT NULL DEFAULT 0,
		exit_price  DECIMAL(38, 18) NOT NULL DEFAULT 0,
		pnl         DECIMAL(38, 18) NOT NULL DEFAULT 0,
		closed_at   TIMESTAMPTZ,
		raw_json    VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS active_positions (
		account_id    VARCHAR NOT NULL,
		asset         VARCHAR NOT NULL,
		market_id     VARCHAR,
		outcome       VARCHAR,
		size          DECIMAL(38, 18) NOT NULL DEFAULT 0,
		avg_price     DECIMAL(38, 18) NOT NULL DEFAULT 0,
		initial_value DECIMAL(38, 18) NOT NULL DEFAULT 0,
		current_value DECIMAL(38, 18) NOT NULL DEFAULT 0,
		cash_pnl      DECIMAL(38, 18) NOT NULL DEFAULT 0,
		percent_pnl   DECIMAL(38, 18) NOT NULL DEFAULT 0,
		realized_pnl  DECIMAL(38, 18) NOT NULL DEFAULT 0,
		cur_price     DECIMAL(38, 18) NOT NULL DEFAULT 0,
		redeemable    BOOLEAN NOT NULL DEFAULT FALSE,
		mergeable     BOOLEAN NOT NULL DEFAULT FALSE,
		end_date      TIMESTAMPTZ,
		raw_json      VARCHAR,
		PRIMARY KEY (account_id, asset)
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		run_id            VARCHAR PRIMARY KEY,
		started_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ,
		status            VARCHAR NOT NULL,
		accounts_fetched  INTEGER NOT NULL DEFAULT 0,
		positions_fetched INTEGER NOT NULL DEFAULT 0,
		error_count       INTEGER NOT NULL DEFAULT 0,
		error_summary     VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
		account_id   VARCHAR NOT NULL,
		snapshot_at  TIMESTAMPTZ NOT NULL,
		rank         INTEGER NOT NULL CHECK (rank >= 1),
		display_name VARCHAR,
		run_id       VARCHAR,
		PRIMARY KEY (account_id, snapshot_at)
	)`,
}
