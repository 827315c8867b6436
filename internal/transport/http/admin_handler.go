package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apierrors "keygate/internal/errors"
	"keygate/internal/infrastructure"
	"keygate/internal/store"
)

var errInvalidStatus = errors.New("status must be one of all, active, expired, revoked")

// AdminHandler serves the authenticated management surface.
type AdminHandler struct {
	authority LicenseAuthority
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(authority LicenseAuthority, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authority: authority,
		logger:    logger.With(slog.String("handler", "admin")),
		tracer:    otel.Tracer("keygate/transport"),
	}
}

// CreateRequest is the payload for minting a license.
type CreateRequest struct {
	ClientName     string `json:"client_name" validate:"required,max=200"`
	DurationMonths int    `json:"duration_months" validate:"required,min=1,max=120"`
	Notes          string `json:"notes" validate:"max=2000"`
}

// Bind implements render.Binder.
func (req *CreateRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// ExtendRequest adds months to a license.
type ExtendRequest struct {
	AdditionalMonths int `json:"additional_months" validate:"required,min=1,max=120"`
}

// Bind implements render.Binder.
func (req *ExtendRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// LicenseView is the admin-facing JSON shape of a license record.
type LicenseView struct {
	LicenseKey     string    `json:"license_key"`
	ClientName     string    `json:"client_name"`
	ExpirationDate string    `json:"expiration_date"`
	IsActive       bool      `json:"is_active"`
	HWID           *string   `json:"hwid"`
	Notes          *string   `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
}

func viewOf(l *store.License) *LicenseView {
	return &LicenseView{
		LicenseKey:     l.Key.String(),
		ClientName:     l.ClientName,
		ExpirationDate: l.ExpirationDate.Format("2006-01-02"),
		IsActive:       l.IsActive,
		HWID:           l.HWID,
		Notes:          l.Notes,
		CreatedAt:      l.CreatedAt,
	}
}

// Routes mounts the admin surface. Auth is applied by the parent router.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/stats", h.GetStats)
	r.Get("/by-fingerprint/{fingerprint}", h.GetByFingerprint)
	r.Get("/{key}", h.Get)
	r.Post("/{key}/revoke", h.Revoke)
	r.Post("/{key}/reactivate", h.Reactivate)
	r.Post("/{key}/extend", h.Extend)
	r.Post("/{key}/unbind", h.Unbind)
	r.Post("/{key}/reset", h.Reset)
	r.Delete("/{key}", h.Delete)

	return r
}

// Create handles POST /api/admin/licenses.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.admin.create")
	defer span.End()
	r = r.WithContext(ctx)

	req := &CreateRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderValidation(w, r, err)
		return
	}

	lic, err := h.authority.Create(ctx, req.ClientName, req.DurationMonths, req.Notes)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, viewOf(lic))
}

// List handles GET /api/admin/licenses?status=&search=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.admin.list")
	defer span.End()
	r = r.WithContext(ctx)

	status := store.StatusFilter(r.URL.Query().Get("status"))
	if status == "" {
		status = store.StatusAll
	}
	switch status {
	case store.StatusAll, store.StatusActive, store.StatusExpired, store.StatusRevoked:
	default:
		h.renderValidation(w, r, errInvalidStatus)
		return
	}

	licenses, err := h.authority.List(ctx, status, r.URL.Query().Get("search"))
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	views := make([]*LicenseView, 0, len(licenses))
	for i := range licenses {
		views = append(views, viewOf(&licenses[i]))
	}
	render.JSON(w, r, map[string]interface{}{
		"licenses": views,
		"count":    len(views),
	})
}

// GetStats handles GET /api/admin/licenses/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.admin.stats")
	defer span.End()
	r = r.WithContext(ctx)

	stats, err := h.authority.Stats(ctx)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, stats)
}

// Get handles GET /api/admin/licenses/{key}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.admin.get")
	defer span.End()
	r = r.WithContext(ctx)

	lic, err := h.authority.Get(ctx, chi.URLParam(r, "key"))
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, viewOf(lic))
}

// GetByFingerprint handles GET /api/admin/licenses/by-fingerprint/{fingerprint}.
// Answers "which license is this machine on", the support-desk question.
func (h *AdminHandler) GetByFingerprint(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.admin.get_by_fingerprint")
	defer span.End()
	r = r.WithContext(ctx)

	lic, err := h.authority.GetByFingerprint(ctx, chi.URLParam(r, "fingerprint"))
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, viewOf(lic))
}

// Revoke handles POST /api/admin/licenses/{key}/revoke.
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "revoke", h.authority.Revoke)
}

// Reactivate handles POST /api/admin/licenses/{key}/reactivate.
func (h *AdminHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "reactivate", h.authority.Reactivate)
}

// Unbind handles POST /api/admin/licenses/{key}/unbind.
func (h *AdminHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "unbind", h.authority.Unbind)
}

// Reset handles POST /api/admin/licenses/{key}/reset.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "reset", h.authority.Reset)
}

// Delete handles DELETE /api/admin/licenses/{key}.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "delete", h.authority.Delete)
}

// Extend handles POST /api/admin/licenses/{key}/extend.
func (h *AdminHandler) Extend(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.admin.extend")
	defer span.End()
	r = r.WithContext(ctx)

	req := &ExtendRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderValidation(w, r, err)
		return
	}

	newExpiration, err := h.authority.Extend(ctx, chi.URLParam(r, "key"), req.AdditionalMonths)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"success":             true,
		"new_expiration_date": newExpiration.Format("2006-01-02"),
	})
}

func (h *AdminHandler) lifecycle(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string) error) {
	ctx, span := h.tracer.Start(r.Context(), "handler.admin."+op)
	defer span.End()
	r = r.WithContext(ctx)

	key := chi.URLParam(r, "key")
	if err := fn(ctx, key); err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "admin lifecycle operation applied",
		slog.String("operation", op),
		slog.String("license_key", key),
	)
	render.JSON(w, r, map[string]interface{}{"success": true})
}

func (h *AdminHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, "admin request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	problem := apierrors.FromLicenseError(err, r.URL.Path).
		WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
	render.Render(w, r, problem)
}

func (h *AdminHandler) renderValidation(w http.ResponseWriter, r *http.Request, err error) {
	problem := apierrors.Validation(err.Error(), r.URL.Path).
		WithExtension("trace_id", infrastructure.TraceIDFromContext(r.Context()))
	render.Render(w, r, problem)
}
