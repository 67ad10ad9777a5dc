// Package server exposes the link review API, manual run triggers, metrics
// and the link event websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/server/handler"
	"github.com/alanyoungcy/marketlink/internal/server/middleware"
	"github.com/alanyoungcy/marketlink/internal/server/ws"
)

// Config holds HTTP server settings.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIKey       string // empty disables auth
	RateLimit    int    // mutating requests per minute per client; 0 disables
	WriteTimeout time.Duration
}

// Handlers groups the route handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Links   *handler.LinkHandler
	Runs    *handler.RunHandler
	Metrics http.Handler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers every route and builds the middleware chain. hub, obs and
// limiter may be nil.
func New(cfg Config, h Handlers, hub *ws.Hub, obs middleware.Observer, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/links", h.Links.List)
	mux.HandleFunc("GET /api/links/stats", h.Links.Stats)
	mux.HandleFunc("GET /api/links/{id}", h.Links.Get)
	mux.HandleFunc("POST /api/links/{id}/confirm", h.Links.Confirm)
	mux.HandleFunc("POST /api/links/{id}/reject", h.Links.Reject)
	mux.HandleFunc("GET /api/audit", h.Links.Audit)

	mux.HandleFunc("GET /api/runs", h.Runs.ListTopics)
	mux.HandleFunc("GET /api/runs/{topic}", h.Runs.Last)
	mux.HandleFunc("POST /api/runs/{topic}", h.Runs.Trigger)
	mux.HandleFunc("POST /api/policy/{topic}", h.Runs.Policy)
	mux.HandleFunc("GET /api/reports", h.Runs.ListReports)
	mux.HandleFunc("GET /api/reports/{path...}", h.Runs.GetReport)

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var chain http.Handler = mux
	chain = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(chain)
	chain = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(chain)
	chain = middleware.Logging(logger, obs)(chain)
	chain = middleware.CORS(cfg.CORSOrigins)(chain)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		// Manual runs respond synchronously.
		writeTimeout = 5 * time.Minute
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           chain,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the full middleware chain (tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
