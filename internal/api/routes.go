// Package api exposes the HTTP control surface of the translation server:
// session lifecycle under /v1, WebSocket event feeds, health probes, and the
// Prometheus scrape endpoint.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxlate/voxlate/internal/health"
	"github.com/voxlate/voxlate/internal/observe"
)

// Config carries the identity reported by GET /v1/status.
type Config struct {
	Service string
	Version string
}

// Router assembles the HTTP surface: the session API under /v1, the health
// probes, and /metrics.
type Router struct {
	handler *Handler
	health  *health.Registry
	metrics *observe.Metrics
}

// NewRouter wires the API around the given session manager and health
// registry.
func NewRouter(cfg Config, sessions Sessions, reg *health.Registry, metrics *observe.Metrics, logger *slog.Logger) *Router {
	return &Router{
		handler: NewHandler(cfg, sessions, logger),
		health:  reg,
		metrics: metrics,
	}
}

// Routes builds the chi router with the full middleware chain.
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(observe.Middleware(r.metrics))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", r.health.Healthz)
	router.Get("/readyz", r.health.Readyz)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/v1", func(router chi.Router) {
		router.Get("/status", r.handler.GetStatus)
		router.Get("/sessions", r.handler.ListSessions)
		router.Post("/sessions", r.handler.CreateSession)
		router.Get("/sessions/{id}", r.handler.GetSession)
		router.Delete("/sessions/{id}", r.handler.StopSession)
		router.Get("/sessions/{id}/ws", r.handler.HandleSessionWebSocket)
		router.Get("/events", r.handler.HandleEventsWebSocket)
	})

	return router
}
