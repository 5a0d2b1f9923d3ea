package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/paphko/habpanelviewer/internal/auth"
	"github.com/paphko/habpanelviewer/internal/config"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router

	dispatcher     DispatcherPort
	telemetryHub   TelemetryPort
	grants         GrantsPort
	authMiddleware *auth.Middleware

	cfg       config.ServerConfig
	startTime time.Time
}

// NewServer creates a new API server and registers its routes. A nil auth
// middleware serves every route unauthenticated.
func NewServer(cfg config.ServerConfig, dispatcher DispatcherPort, telemetryHub TelemetryPort, grants GrantsPort, authMiddleware *auth.Middleware) *Server {
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(nil)
	}
	s := &Server{
		router:         mux.NewRouter(),
		dispatcher:     dispatcher,
		telemetryHub:   telemetryHub,
		grants:         grants,
		authMiddleware: authMiddleware,
		cfg:            cfg,
		startTime:      time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP on the configured address until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
