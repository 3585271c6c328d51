// Package server provides the sandbox node's HTTP server setup and wiring.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/deploycheck/internal/config"
	deploymentsTransport "github.com/pendergraft/deploycheck/internal/deployments/transport"
	"github.com/pendergraft/deploycheck/internal/middleware/logging"
	"github.com/pendergraft/deploycheck/internal/middleware/ratelimit"
	"github.com/pendergraft/deploycheck/internal/observability/metrics"
	"github.com/pendergraft/deploycheck/internal/sandbox"
)

// Server is the HTTP front of a sandbox node: JSON-RPC on "/", a read-only
// REST view of factory deployments under /api/v1, and health probes.
type Server struct {
	cfg     *config.Config
	backend *sandbox.Backend
	logger  *slog.Logger
	router  *chi.Mux
	rpc     *rpc.Server
}

// New creates a new server
func New(cfg *config.Config, backend *sandbox.Backend, logger *slog.Logger) (*Server, error) {
	rpcSrv, err := sandbox.NewRPCServer(backend)
	if err != nil {
		return nil, fmt.Errorf("registering RPC API: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		router:  chi.NewRouter(),
		rpc:     rpcSrv,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the JSON-RPC server.
func (s *Server) Close() {
	s.rpc.Stop()
}

func (s *Server) setupMiddleware() {
	// 1. Body size limit
	s.router.Use(MaxBodySize(int64(s.cfg.Server.MaxBodySizeMB) << 20))

	// 2. Simulated provider throttling (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerSec: s.cfg.RateLimit.RequestsPerSec,
		BurstSize:      s.cfg.RateLimit.BurstSize,
	}))

	// 3. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	// JSON-RPC
	s.router.Post("/", s.handleRPC)

	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	if metrics.Enabled() {
		s.router.Handle("/metrics", metrics.Handler())
	}

	deploymentsHandler := deploymentsTransport.NewHandler(s.backend)

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		deploymentsHandler.RegisterRoutes(r)
	})
}

// handleRPC answers 503 while the node is starting, like a provider whose
// process is up but not yet serving.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ready(); err != nil {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
		return
	}
	s.rpc.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ready(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
