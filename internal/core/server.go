// Package core provides the HTTP chassis for the planguard service. It
// creates the chi router and enforces cross-cutting concerns -- panic
// recovery, request IDs, structured logging, ops-secret authentication --
// before requests reach the enforcement handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"planguard/internal/config"
)

// Server encapsulates the chassis dependencies for the planguard API,
// allowing for easy injection during testing.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are optional dependency checks run by the health
	// endpoint (e.g. database connectivity).
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the router and prepares the server for route
// mounting. The caller mounts routes after construction; this separation
// lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying chi router for route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}
