package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keygate/internal/config"
	"keygate/internal/middleware"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Authority LicenseAuthority
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Probes    map[string]Prober
}

// NewRouter assembles the full HTTP surface.
func NewRouter(cfg *config.Config, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	metrics := middleware.NewMetrics(deps.Registry)

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(metrics.Handler)

	licenseHandler := NewLicenseHandler(deps.Authority, deps.Logger)
	adminHandler := NewAdminHandler(deps.Authority, deps.Logger)
	healthHandler := NewHealthHandler(deps.Logger, deps.Probes)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, deps.Logger)
	} else {
		// A no-op budget keeps the route wiring uniform.
		limiter = middleware.NewRateLimiter(1e6, 1e6, deps.Logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", licenseHandler.Routes(limiter))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.Admin.Token, deps.Logger))
			r.Mount("/licenses", adminHandler.Routes())
		})
	})

	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/readyz", healthHandler.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	return r
}
