package core

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteRegistrar registers a group of domain handler routes on a router.
// Registrars are populated by the application entry point; this indirection
// avoids import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the /v1 API group, and the operational endpoints.
//
// Middleware ordering:
//  1. Recoverer     - outermost, catches all panics.
//  2. RequestID     - correlation ID for tracing.
//  3. RequestLogger - structured request logging.
func (s *Server) MountRoutes(public []RouteRegistrar, ops []RouteRegistrar) {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range public {
			registrar(r)
		}
		if len(ops) > 0 {
			r.Group(func(r chi.Router) {
				r.Use(s.OpsSecretMiddleware)
				for _, registrar := range ops {
					registrar(r)
				}
			})
		}
	})

	s.router.Get("/healthz", s.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
}
