package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/rickgao/polymarket-data/internal/api"
	"github.com/rickgao/polymarket-data/internal/config"
	"github.com/rickgao/polymarket-data/internal/fetcher"
	"github.com/rickgao/polymarket-data/internal/ingest"
	"github.com/rickgao/polymarket-data/internal/metrics"
	"github.com/rickgao/polymarket-data/internal/model"
	"github.com/rickgao/polymarket-data/internal/store"
	"github.com/rickgao/polymarket-data/internal/throttle"
	"github.com/rickgao/polymarket-data/internal/version"
)

// Quick mode limits, for smoke-testing against the live API.
const (
	quickAccounts  = 2
	quickPositions = 10
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command and returns the process exit code: 0 on success,
// 1 when the ingest fails and 2 for usage or configuration errors.
func execute(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "configs/ingest.local.yaml", "path to config file")
	quick := fs.Bool("quick", false, "ingest 2 accounts with at most 10 positions each")
	limit := fs.Int("limit", 0, "override the leaderboard size")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 2
	}
	applyOverrides(cfg, *quick, *limit)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid overrides: %v\n", err)
		return 2
	}

	logger := newLogger(stderr, cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting ingest",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"leaderboard_size", cfg.Ingest.LeaderboardSize,
		"store", cfg.Store.Driver,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics, logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	summary, err := run(ctx, cfg, logger)
	if summary != nil {
		out, mErr := json.MarshalIndent(summary, "", "  ")
		if mErr != nil {
			logger.Error("failed to encode summary", "err", mErr)
		} else {
			fmt.Fprintln(stdout, string(out))
		}
	}
	if err != nil {
		logger.Error("ingest failed", "err", err)
		return 1
	}
	return 0
}

// run wires the pipeline from cfg and executes one ingest iteration.
func run(ctx context.Context, cfg *config.IngestConfig, logger *slog.Logger) (*model.RunSummary, error) {
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	limiter, err := throttle.NewLimiter(cfg.API.RequestsPerSecond)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", model.KindConfiguration, err)
	}
	gate, err := throttle.NewGate(cfg.Ingest.MaxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", model.KindConfiguration, err)
	}

	client := api.NewClient(
		cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithMaxAttempts(cfg.API.MaxAttempts),
		api.WithBackoff(cfg.API.RetryBaseDelay, cfg.API.RetryMaxDelay),
		api.WithLimiter(limiter),
		api.WithUserAgent(cfg.API.UserAgent),
	)

	deps := ingest.Deps{
		Leaderboard: fetcher.NewLeaderboard(client, fetcher.LeaderboardConfig{
			Size:       cfg.Ingest.LeaderboardSize,
			PageSize:   cfg.Ingest.LeaderboardPageSize,
			TimePeriod: cfg.Ingest.TimePeriod,
			OrderBy:    cfg.Ingest.OrderBy,
			Category:   cfg.Ingest.Category,
		}, logger),
		Positions: fetcher.NewPositions(client, fetcher.PositionsConfig{
			PageSize:      cfg.Ingest.PositionsPageSize,
			MaxPerAccount: cfg.Ingest.MaxPositionsPerAccount,
		}, logger),
		Gate:  gate,
		Store: st,
	}
	if !cfg.Ingest.SkipActive {
		deps.Active = fetcher.NewActivePositions(client, fetcher.ActiveConfig{
			PageSize:      cfg.Ingest.ActivePageSize,
			MaxPerAccount: cfg.Ingest.MaxPositionsPerAccount,
			SizeThreshold: cfg.Ingest.ActiveSizeThreshold,
		}, logger)
	}

	orch, err := ingest.New(ingest.Config{}, deps, logger)
	if err != nil {
		return nil, err
	}

	summary, err := orch.Run(ctx)
	if err == nil {
		if stats, sErr := st.Stats(ctx); sErr == nil {
			logger.Info("store totals",
				"snapshot_rows", stats.Snapshots,
				"positions", stats.Positions,
				"active_positions", stats.Active,
				"markets", stats.Markets,
				"runs", stats.Runs,
			)
		}
	}
	return summary, err
}

// applyOverrides applies command line flags on top of the loaded config.
func applyOverrides(cfg *config.IngestConfig, quick bool, limit int) {
	if limit > 0 {
		cfg.Ingest.LeaderboardSize = limit
		cfg.Ingest.LeaderboardPageSize = min(cfg.Ingest.LeaderboardPageSize, limit)
	}
	if quick {
		cfg.Ingest.LeaderboardSize = quickAccounts
		cfg.Ingest.LeaderboardPageSize = quickAccounts
		cfg.Ingest.MaxPositionsPerAccount = quickPositions
		cfg.Ingest.PositionsPageSize = min(cfg.Ingest.PositionsPageSize, quickPositions)
		cfg.Ingest.ActivePageSize = min(cfg.Ingest.ActivePageSize, quickPositions)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func startMetricsServer(cfg config.MetricsConfig, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", "port", cfg.Port, "path", cfg.Path)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	return srv
}
