// Package api exposes the analytics engines over HTTP. Analysis endpoints
// enqueue background jobs and return an id immediately; the policy
// simulate/assess endpoints answer synchronously because they are cheap.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/g5/dss-engine/internal/config"
)

// NewRouter wires the middleware stack and all routes.
func NewRouter(h *Handler, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(rateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", h.Stats)

		r.Route("/segmentation", func(r chi.Router) {
			r.Post("/analyze", h.AnalyzeSegments)
		})

		r.Route("/basket", func(r chi.Router) {
			r.Post("/rules", h.MineRules)
			r.Post("/recommendations", h.Recommend)
		})

		r.Route("/policy", func(r chi.Router) {
			r.Post("/optimize", h.OptimizeThreshold)
			r.Post("/simulate", h.SimulateThreshold)
			r.Post("/assess", h.AssessOrder)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Delete("/", h.ClearJobs)
			r.Get("/{id}", h.GetJob)
			r.Post("/{id}/cancel", h.CancelJob)
			r.Delete("/{id}", h.RemoveJob)
		})
	})

	return r
}
