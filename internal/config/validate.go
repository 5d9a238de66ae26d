package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

// Validate checks that all required fields are set and values are valid.
func (c *IngestConfig) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be > 0")
	}
	if c.API.MaxAttempts < 1 {
		return errors.New("api.max_attempts must be >= 1")
	}
	if c.API.RetryBaseDelay < 0 {
		return errors.New("api.retry_base_delay must be >= 0")
	}
	if c.API.RetryMaxDelay < c.API.RetryBaseDelay {
		return fmt.Errorf("api.retry_max_delay (%s) cannot be less than retry_base_delay (%s)",
			c.API.RetryMaxDelay, c.API.RetryBaseDelay)
	}
	if c.API.RequestsPerSecond <= 0 {
		return errors.New("api.requests_per_second must be > 0")
	}

	if c.Ingest.LeaderboardSize < 1 {
		return errors.New("ingest.leaderboard_size must be >= 1")
	}
	if c.Ingest.LeaderboardPageSize < 1 {
		return errors.New("ingest.leaderboard_page_size must be >= 1")
	}
	if c.Ingest.PositionsPageSize < 1 {
		return errors.New("ingest.positions_page_size must be >= 1")
	}
	if c.Ingest.ActivePageSize < 1 {
		return errors.New("ingest.active_positions_page_size must be >= 1")
	}
	if d, err := decimal.NewFromString(c.Ingest.ActiveSizeThreshold); err != nil || d.IsNegative() {
		return fmt.Errorf("ingest.active_size_threshold must be a non-negative decimal, got %q", c.Ingest.ActiveSizeThreshold)
	}
	if c.Ingest.MaxConcurrency < 1 {
		return errors.New("ingest.max_concurrency must be >= 1")
	}
	if c.Ingest.MaxPositionsPerAccount < 0 {
		return errors.New("ingest.max_positions_per_account must be >= 0")
	}

	switch c.Store.Driver {
	case "postgres":
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	case "duckdb":
	default:
		return fmt.Errorf("store.driver must be postgres or duckdb, got %q", c.Store.Driver)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.URL != "" {
		return nil
	}
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	return nil
}
