// Package server assembles the HTTP API: routing, middleware chain, and
// graceful lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenttrail/agenttrail/internal/config"
	"github.com/agenttrail/agenttrail/internal/handlers"
	"github.com/agenttrail/agenttrail/internal/logging"
	"github.com/agenttrail/agenttrail/internal/middleware"
	"github.com/agenttrail/agenttrail/internal/ratelimit"
	"github.com/agenttrail/agenttrail/internal/service"
	"github.com/agenttrail/agenttrail/internal/storage"
)

// Server is the query API server.
type Server struct {
	httpServer *http.Server
	limiter    ratelimit.Limiter
	logger     *slog.Logger
}

// New wires the handler set, middleware chain, and HTTP server. Handlers
// get the context-aware logger so request IDs reach their log lines.
func New(cfg *config.Config, svc *service.Service, manager *storage.Manager, limiter ratelimit.Limiter, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}

	logs := handlers.NewLogs(svc, cfg, logger)
	store := handlers.NewStorage(manager, cfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/logs/files", logs.Files)
	mux.HandleFunc("GET /api/logs/data", logs.Data)
	mux.HandleFunc("GET /api/logs/search", logs.Search)
	mux.HandleFunc("GET /api/logs/stats", logs.Stats)
	mux.HandleFunc("GET /api/logs/sessions", logs.Sessions)
	mux.HandleFunc("GET /api/logs/metrics", logs.Metrics)
	mux.HandleFunc("GET /api/logs/export", logs.Export)
	mux.HandleFunc("GET /api/directories/browse", logs.Browse)

	mux.HandleFunc("POST /api/storage/test", store.Test)
	mux.HandleFunc("POST /api/storage/configure", store.Configure)
	mux.HandleFunc("GET /api/storage/current", store.Current)
	mux.HandleFunc("POST /api/storage/reset", store.Reset)

	mux.HandleFunc("GET /healthz", handlers.Healthz)
	mux.Handle("GET /readyz", handlers.Readyz(manager))
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.Admission(limiter, logger.Logger)(mux)
	handler = middleware.Recovery(logger.Logger)(handler)
	handler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins})(handler)
	handler = middleware.RequestID(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout(),
			WriteTimeout: cfg.Server.WriteTimeout(),
			IdleTimeout:  cfg.Server.IdleTimeout(),
		},
		limiter: limiter,
		logger:  logger.Logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and releases the limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.limiter.Close()
	return err
}

// Handler exposes the composed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
