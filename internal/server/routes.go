package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playperu/wayfinder/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, sessions *Registry, checks map[string]health.Checker, gatherer prometheus.Gatherer, spaDir string) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Get("/docs", handleSwaggerUI())
	r.Get("/docs/*", handleSwaggerUI())
	r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/api/sessions", handleCreateSession(sessions))

	// Session routes; {id} resolved by sessionMiddleware.
	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Use(sessionMiddleware(sessions))
		r.Get("/", handleGetSession(sessions))
		r.Delete("/", handleDeleteSession(sessions))
		r.Put("/start", handleSetStart())
		r.Put("/destination", handleSetDestination())
		r.Post("/lookup", handleLookup(sessions))
		r.Post("/routes/{index}/select", handleSelectRoute())
		r.Get("/routes/{index}/geometry", handleRouteGeometry(sessions))
		r.Post("/back", handleBack())
		r.Get("/events", handleEvents(logger, sessions))
	})

	if spaDir != "" {
		if info, err := os.Stat(spaDir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", spaDir)
			r.NotFound(handleSPA(spaDir))
		}
	}
}
