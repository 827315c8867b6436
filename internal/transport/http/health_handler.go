package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Prober reports whether a dependency is reachable. The store pools and the
// authority clock both satisfy it through small adapters in the server
// wiring.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

// Probe implements Prober.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// HealthHandler serves liveness and readiness endpoints.
type HealthHandler struct {
	probes map[string]Prober
	logger *slog.Logger
}

// NewHealthHandler creates a health handler over named dependency probes.
func NewHealthHandler(logger *slog.Logger, probes map[string]Prober) *HealthHandler {
	return &HealthHandler{
		probes: probes,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// Liveness handles GET /healthz. Process up means alive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Readiness handles GET /readyz. Every probe must answer within the budget;
// a failing store means verification cannot be served and the instance
// should be pulled from rotation.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	healthy := true
	for name, probe := range h.probes {
		if err := probe.Probe(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness probe failed",
				slog.String("probe", name),
				slog.String("error", err.Error()),
			)
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := "ok"
	if !healthy {
		status = "degraded"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
