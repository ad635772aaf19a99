// Package transport serves the mining results to the external
// reporting/plotting collaborator: the latest run report as JSON, cache
// statistics, prometheus metrics, and a websocket stream of per-pair
// progress.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"corrmine/internal/cache"
	"corrmine/internal/config"
	"corrmine/internal/miner"
)

// Server is the report HTTP server.
type Server struct {
	cfg    config.ServerConfig
	cache  *cache.Cache
	hub    *Hub
	logger *slog.Logger
	http   *http.Server

	mu     sync.RWMutex
	latest *miner.RunReport
}

// NewServer builds the server. registry may be nil to disable /metrics.
func NewServer(cfg config.ServerConfig, c *cache.Cache, hub *Hub,
	registry *promclient.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "transport"))

	s := &Server{
		cfg:    cfg,
		cache:  c,
		hub:    hub,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(RateLimit(cfg.RateRPS, cfg.RateBurst, logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/results", s.handleResults)
	r.Get("/api/cache/stats", s.handleCacheStats)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if hub != nil {
		r.Get("/ws/progress", hub.ServeHTTP)
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// SetReport publishes a finished run's report.
func (s *Server) SetReport(report *miner.RunReport) {
	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()
}

// ListenAndServe blocks serving HTTP until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("report server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("report server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	report := s.latest
	s.mu.RUnlock()

	if report == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "no completed run"})
		return
	}
	render.JSON(w, r, report)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.cache.Stats())
}
