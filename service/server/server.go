package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenpipe/lumenpipe/service/config"
	"github.com/lumenpipe/lumenpipe/service/db"
	"github.com/lumenpipe/lumenpipe/service/metrics"
)

// Server represents the HTTP server for the submission service.
type Server struct {
	addr      string
	cfg       *config.Config
	store     *db.Store
	submitter Submitter
	dialer    RelayDialer
	generator TokenGenerator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The submitter drives the compile+submit pipeline for POST /api/v1/submissions.
// The dialer builds relay clients for token activation and claiming.
// The generator is optional - if nil, the token generation endpoint won't be
// available. The metrics is optional - if nil, the /metrics endpoint won't be
// available.
func New(addr string, cfg *config.Config, store *db.Store, sub Submitter, dialer RelayDialer, generator TokenGenerator, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		submitter: sub,
		dialer:    dialer,
		generator: generator,
		metrics:   m,
		logger:    logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Submission routes
	mux.Handle("POST /api/v1/submissions", handleSubmit(s.submitter, s.logger))
	mux.Handle("GET /api/v1/submissions", handleListSubmissions(s.store, s.logger))

	// Credit token routes
	mux.Handle("GET /api/v1/credits", handleCheckCredits(s.submitter, s.logger))
	mux.Handle("POST /api/v1/tokens/activate", handleActivateToken(s.dialer, s.logger))
	mux.Handle("POST /api/v1/tokens/claim", handleClaimToken(s.dialer, s.logger))

	// Token generation requires the privileged relay credential
	if s.generator != nil {
		mux.Handle("POST /api/v1/tokens/generate", handleGenerateTokens(s.generator, s.logger))
		s.logger.Info("token generation endpoint enabled")
	} else {
		s.logger.Warn("relay admin token not configured, token generation endpoint disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with metrics and CORS middleware
	handler := corsMiddleware(metrics.HTTPMetricsMiddleware(s.metrics, "api")(mux))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
