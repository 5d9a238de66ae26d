package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL             = "https://data-api.polymarket.com"
	DefaultAPITimeout          = 20 * time.Second
	DefaultMaxAttempts         = 3
	DefaultRetryBaseDelay      = 500 * time.Millisecond
	DefaultRetryMaxDelay       = 30 * time.Second
	DefaultRequestsPerSecond   = 2
	DefaultLeaderboardSize     = 500
	DefaultLeaderboardPageSize = 200
	DefaultPositionsPageSize   = 100
	DefaultActivePageSize      = 100
	DefaultActiveSizeThreshold = ".1"
	DefaultMaxConcurrency      = 8
	DefaultTimePeriod          = "month"
	DefaultOrderBy             = "PNL"
	DefaultCategory            = "overall"
	DefaultStoreDriver         = "postgres"
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// seeded returns a config holding the defaults that an explicit zero must not
// override. Parse decodes on top of it, so only absent keys keep these values
// and a configured 0 reaches Validate.
func seeded() IngestConfig {
	return IngestConfig{
		API:    APIConfig{RequestsPerSecond: DefaultRequestsPerSecond},
		Ingest: RunConfig{MaxConcurrency: DefaultMaxConcurrency},
	}
}

// ApplyDefaults fills every zero-valued optional field. The request rate and
// concurrency are seeded before decoding instead, see Parse.
func (c *IngestConfig) ApplyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxAttempts == 0 {
		c.API.MaxAttempts = DefaultMaxAttempts
	}
	if c.API.RetryBaseDelay == 0 {
		c.API.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.API.RetryMaxDelay == 0 {
		c.API.RetryMaxDelay = DefaultRetryMaxDelay
	}

	// Ingest defaults
	if c.Ingest.LeaderboardSize == 0 {
		c.Ingest.LeaderboardSize = DefaultLeaderboardSize
	}
	if c.Ingest.LeaderboardPageSize == 0 {
		c.Ingest.LeaderboardPageSize = DefaultLeaderboardPageSize
	}
	if c.Ingest.PositionsPageSize == 0 {
		c.Ingest.PositionsPageSize = DefaultPositionsPageSize
	}
	if c.Ingest.ActivePageSize == 0 {
		c.Ingest.ActivePageSize = DefaultActivePageSize
	}
	if c.Ingest.ActiveSizeThreshold == "" {
		c.Ingest.ActiveSizeThreshold = DefaultActiveSizeThreshold
	}
	if c.Ingest.TimePeriod == "" {
		c.Ingest.TimePeriod = DefaultTimePeriod
	}
	if c.Ingest.OrderBy == "" {
		c.Ingest.OrderBy = DefaultOrderBy
	}
	if c.Ingest.Category == "" {
		c.Ingest.Category = DefaultCategory
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	applyDBDefaults(&c.Store.Postgres)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
