package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkm/fieldsat/internal/config"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	RateLimit config.RateLimitConfig

	// Metrics serves /metrics. Defaults to the default Prometheus registry.
	Metrics http.Handler
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, opts RouterOptions, logger *slog.Logger) chi.Router {
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Probes and metrics are not rate limited.
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Method(http.MethodGet, "/metrics", opts.Metrics)

	r.Group(func(r chi.Router) {
		if opts.RateLimit.RequestsPerSecond > 0 {
			r.Use(RateLimit(opts.RateLimit.RequestsPerSecond, opts.RateLimit.Burst, logger))
		}
		r.Use(ContentTypeJSON)

		r.Route("/fields/{fieldId}", func(r chi.Router) {
			r.Get("/observation", h.Observation)
			r.Get("/observations", h.Observations)
			r.Get("/trend", h.Trend)
		})

		r.Post("/indices", h.Indices)
		r.Post("/statistics", h.Statistics)
		r.Post("/assessments", h.Assessment)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	return r
}
