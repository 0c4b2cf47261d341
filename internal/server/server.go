// Package server exposes the bot's operational HTTP API: status,
// diagnostics, and manual exit commands.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/copybot/internal/server/handler"
	"github.com/alanyoungcy/copybot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr      string
	AuthToken string // empty disables authentication
}

// Handlers aggregates the handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Positions   *handler.PositionHandler
	Diagnostics *handler.DiagnosticsHandler
}

// Server is the operational HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered and the middleware chain
// applied. The health endpoint stays outside the auth gate so uptime
// checks work without credentials.
func New(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/diagnostics", handlers.Diagnostics.GetDiagnostics)

	// Exit routes exist only when something can act on the request. A
	// read-only deployment leaves Positions nil.
	if handlers.Positions != nil {
		mux.HandleFunc("POST /api/positions/{mint}/exit", handlers.Positions.ExitPosition)
		mux.HandleFunc("POST /api/positions/exit-all", handlers.Positions.ExitAll)
	}

	var api http.Handler = mux
	api = middleware.Auth(cfg.AuthToken)(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	root.Handle("/api/", api)

	var h http.Handler = root
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
