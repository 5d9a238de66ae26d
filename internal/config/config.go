package config

import "time"

// IngestConfig is the root configuration for the ingester.
type IngestConfig struct {
	API     APIConfig     `yaml:"api"`
	Ingest  RunConfig     `yaml:"ingest"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig holds Polymarket data API settings.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`      // Hard per-request timeout
	MaxAttempts       int           `yaml:"max_attempts"` // Total attempts including the first
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Permits are spaced 1/R apart
	UserAgent         string        `yaml:"user_agent"`
}

// RunConfig holds the shape of one ingest iteration.
type RunConfig struct {
	LeaderboardSize        int    `yaml:"leaderboard_size"`
	LeaderboardPageSize    int    `yaml:"leaderboard_page_size"`
	PositionsPageSize      int    `yaml:"positions_page_size"`
	ActivePageSize         int    `yaml:"active_positions_page_size"`
	ActiveSizeThreshold    string `yaml:"active_size_threshold"`
	SkipActive             bool   `yaml:"skip_active_positions"`
	MaxConcurrency         int    `yaml:"max_concurrency"`
	MaxPositionsPerAccount int    `yaml:"max_positions_per_account"` // 0 = unlimited
	TimePeriod             string `yaml:"time_period"`
	OrderBy                string `yaml:"order_by"`
	Category               string `yaml:"category"`
}

// StoreConfig selects and configures the relational backend.
type StoreConfig struct {
	Driver   string       `yaml:"driver"` // "postgres" or "duckdb"
	Postgres DBConfig     `yaml:"postgres"`
	DuckDB   DuckDBConfig `yaml:"duckdb"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	URL      string `yaml:"url"` // Full DSN, overrides the discrete fields when set
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DuckDBConfig holds the embedded DuckDB settings.
type DuckDBConfig struct {
	Path string `yaml:"path"` // Empty or ":memory:" for an in-memory database
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
