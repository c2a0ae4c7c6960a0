package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"

	"github.com/lumenpipe/lumenpipe/service/config"
	"github.com/lumenpipe/lumenpipe/service/db"
	"github.com/lumenpipe/lumenpipe/service/metrics"
	natspkg "github.com/lumenpipe/lumenpipe/service/nats"
	"github.com/lumenpipe/lumenpipe/service/relay"
	"github.com/lumenpipe/lumenpipe/service/server"
	"github.com/lumenpipe/lumenpipe/service/stellar"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"horizon_url", cfg.HorizonURL,
		"relay_url", cfg.RelayURL,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if err := db.Migrate(ctx, dbPool); err != nil {
		logger.Error("failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize database store
	store := db.NewStore(dbPool, metricsCollector)

	// Initialize Horizon client for account state and fee stats
	horizon := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}

	// Optional signer for compiled envelopes
	var opts stellar.CompilerOptions
	opts.Timeout = cfg.SubmitTimeout
	if cfg.SignerSeed != "" {
		signer, err := keypair.ParseFull(cfg.SignerSeed)
		if err != nil {
			logger.Error("invalid signer seed", "error", err)
			os.Exit(1)
		}
		opts.Signer = signer
		logger.Info("signing enabled", "signer", signer.Address())
	}

	compiler := stellar.NewCompiler(horizon, cfg.NetworkPassphrase, opts, logger)
	logger.Info("initialized transaction compiler", "network", cfg.NetworkPassphrase)

	// Initialize NATS publisher for submission events
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Relay clients are built per request around the caller's credit token
	newRelay := func(token string) (submitter.RelayClient, error) {
		return relay.NewClient(cfg.RelayURL, token, nil, metricsCollector, logger)
	}
	dialer := func(token string) (server.TokenClient, error) {
		return relay.NewClient(cfg.RelayURL, token, nil, metricsCollector, logger)
	}

	sub := submitter.New(compiler, newRelay, store, natsPublisher, metricsCollector, logger)

	// Token generation needs the privileged relay credential
	var generator server.TokenGenerator
	if cfg.RelayAdminToken != "" {
		admin, err := relay.NewAdminClient(cfg.RelayURL, cfg.RelayAdminToken, nil, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create relay admin client", "error", err)
			os.Exit(1)
		}
		generator = admin
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, sub, dialer, generator, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"horizon_url", cfg.HorizonURL,
		"relay_url", cfg.RelayURL,
		"nats_url", cfg.NATSURL,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
