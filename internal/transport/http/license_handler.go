package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "keygate/internal/errors"
	"keygate/internal/infrastructure"
	"keygate/internal/middleware"
)

var validate = validator.New()

// LicenseHandler serves the unauthenticated client surface: activation and
// verification.
type LicenseHandler struct {
	authority LicenseAuthority
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewLicenseHandler creates the client-facing license handler.
func NewLicenseHandler(authority LicenseAuthority, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		authority: authority,
		logger:    logger.With(slog.String("handler", "license")),
		tracer:    otel.Tracer("keygate/transport"),
	}
}

// ActivateRequest is the activation payload sent by installed software.
type ActivateRequest struct {
	LicenseKey  string `json:"license_key" validate:"required"`
	Fingerprint string `json:"fingerprint" validate:"required,len=32,hexadecimal"`
}

// Bind implements render.Binder.
func (req *ActivateRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// ActivateResponse confirms a successful (or idempotent) activation.
type ActivateResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	ClientName   string    `json:"client_name"`
	AlreadyBound bool      `json:"already_bound"`
	Timestamp    time.Time `json:"timestamp"`
}

// VerifyResponse reports a usable license for the querying machine.
type VerifyResponse struct {
	Licensed       bool   `json:"licensed"`
	ClientName     string `json:"client_name"`
	DaysRemaining  int    `json:"days_remaining"`
	ExpirationDate string `json:"expiration_date"`
}

// Routes mounts the client surface. The rate limiter wraps activation only;
// verification runs on every application start and must stay cheap.
func (h *LicenseHandler) Routes(limiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.With(limiter.Handler).Post("/activate", h.Activate)
	r.Get("/verify", h.Verify)

	return r
}

// Activate handles POST /api/license/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.license.activate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/activate"),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	req := &ActivateRequest{}
	if err := render.Bind(r, req); err != nil {
		problem := apierrors.Validation(err.Error(), r.URL.Path).
			WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
		render.Render(w, r, problem)
		return
	}

	res, err := h.authority.Activate(ctx, req.LicenseKey, req.Fingerprint)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	message := "license activated"
	if res.AlreadyBound {
		message = "license already active on this machine"
	}
	span.SetAttributes(attribute.Bool("license.already_bound", res.AlreadyBound))

	render.JSON(w, r, &ActivateResponse{
		Success:      true,
		Message:      message,
		ClientName:   res.ClientName,
		AlreadyBound: res.AlreadyBound,
		Timestamp:    time.Now().UTC(),
	})
}

// Verify handles GET /api/license/verify?fingerprint=...
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.license.verify",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/verify"),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	fp := r.URL.Query().Get("fingerprint")
	if err := validate.Var(fp, "required,len=32,hexadecimal"); err != nil {
		problem := apierrors.Validation("fingerprint must be 32 hex characters", r.URL.Path).
			WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
		render.Render(w, r, problem)
		return
	}

	res, err := h.authority.Verify(ctx, fp)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Int("license.days_remaining", res.DaysRemaining))
	render.JSON(w, r, &VerifyResponse{
		Licensed:       true,
		ClientName:     res.ClientName,
		DaysRemaining:  res.DaysRemaining,
		ExpirationDate: res.ExpirationDate.Format("2006-01-02"),
	})
}

func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, "license request denied",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	problem := apierrors.FromLicenseError(err, r.URL.Path).
		WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
	render.Render(w, r, problem)
}
