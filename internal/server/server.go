// Package server implements the nxcache HTTP server and its route multiplexer.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nxcache/nxcache/internal/auth"
	"github.com/nxcache/nxcache/internal/config"
	"github.com/nxcache/nxcache/internal/handlers"
	"github.com/nxcache/nxcache/internal/router"
	"github.com/nxcache/nxcache/internal/tenant"
)

// Server is the nxcache HTTP server. It wires the protocol routes onto a
// Chi router: /health and /metrics are public, the cache endpoints sit
// behind bearer-token authentication.
type Server struct {
	cfg        *config.Config
	mux        chi.Router
	registry   *tenant.Registry
	cache      *handlers.CacheHandler
	httpServer *http.Server
}

// New creates a Server over the given registry and registers all routes.
func New(cfg *config.Config, registry *tenant.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		mux:      chi.NewMux(),
		registry: registry,
		cache:    handlers.NewCacheHandler(router.New(registry)),
	}
	s.registerRoutes()
	return s
}

// Handler returns the full middleware chain and router as one http.Handler.
// Chain: metricsMiddleware -> requestHeaders -> router (auth is scoped to
// the cache routes inside the router).
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = requestHeaders(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// ListenAndServe starts the HTTP server on the given address. The server is
// stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests (including streaming transfers) to complete within the context
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	s.mux.Get("/health", handlers.Health)
	s.mux.Head("/health", handlers.Health)

	if s.cfg.Metrics.Enabled {
		s.mux.Handle("/metrics", promhttp.Handler())
	}

	s.mux.Route("/v1/cache", func(r chi.Router) {
		r.Use(auth.Middleware(s.registry))
		r.Put("/{hash}", s.cache.PutArtifact)
		r.Get("/{hash}", s.cache.GetArtifact)
	})
}
