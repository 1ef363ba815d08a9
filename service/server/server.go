package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/costs"
	"github.com/brojonat/ptoken/service/db"
	"github.com/brojonat/ptoken/service/metrics"
	natspkg "github.com/brojonat/ptoken/service/nats"
	"github.com/brojonat/ptoken/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analyzer runs single transaction analyses and exposes the cost model
// they are computed with.
type Analyzer interface {
	Analyze(ctx context.Context, signature string, network analysis.Network) (*analysis.Result, error)
	Table() costs.Table
	FeeParams() analysis.FeeParams
}

// HistoryStore persists and lists analyses.
type HistoryStore interface {
	RecordAnalysis(ctx context.Context, signature string, network analysis.Network, result *analysis.Result) (*db.Analysis, error)
	ListRecentAnalyses(ctx context.Context, params db.ListAnalysesParams) ([]*db.Analysis, error)
}

// Server represents the HTTP server for the analysis service.
type Server struct {
	addr      string
	analyzer  Analyzer
	store     HistoryStore
	publisher natspkg.Publisher
	batches   temporal.BatchRunner
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The store is optional - if nil, analyses are not persisted and the history endpoint is disabled.
// The publisher is optional - if nil, analysis events are not published.
// The batches runner is optional - if nil, batch endpoints are disabled.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, analyzer Analyzer, store HistoryStore, publisher natspkg.Publisher, batches temporal.BatchRunner, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		analyzer:  analyzer,
		store:     store,
		publisher: publisher,
		batches:   batches,
		metrics:   m,
		logger:    logger,
	}
}

// Handler builds the routed handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("POST /api/v1/analyze", "analyze", handleAnalyze(s.analyzer, s.store, s.publisher, s.logger))
	route("GET /api/v1/costs", "costs", handleCosts(s.analyzer.Table()))
	route("GET /api/v1/projection", "projection", handleProjection(s.analyzer.Table(), s.analyzer.FeeParams(), s.logger))

	if s.store != nil {
		route("GET /api/v1/analyses", "list_analyses", handleListAnalyses(s.store, s.logger))
	} else {
		s.logger.Warn("history store not configured, history endpoint disabled")
	}

	if s.batches != nil {
		route("POST /api/v1/batches", "start_batch", handleStartBatch(s.batches, s.logger))
		route("GET /api/v1/batches/{workflow_id}", "get_batch", handleGetBatch(s.batches, s.logger))
	} else {
		s.logger.Warn("temporal not configured, batch endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // analyses wait on RPC retries
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

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
