// Package errors renders API failures as RFC 7807 problem details.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// Problem type URIs. Stable identifiers, clients may branch on them.
const (
	TypeValidation   = "/errors/validation"
	TypeUnauthorized = "/errors/unauthorized"
	TypeNotFound     = "/errors/not-found"
	TypeRateLimit    = "/errors/rate-limit"
	TypeInternal     = "/errors/internal"

	TypeLicenseInvalidKey = "/errors/license/invalid-key"
	TypeLicenseNotFound   = "/errors/license/not-found"
	TypeLicenseBound      = "/errors/license/bound-elsewhere"
	TypeLicenseRevoked    = "/errors/license/revoked"
	TypeLicenseExpired    = "/errors/license/expired"
	TypeLicenseAmbiguous  = "/errors/license/not-found-or-revoked"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements render.Renderer.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the top-level object.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 5+len(pd.Extensions))
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// NewProblemDetails creates an RFC 7807 compliant error.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension member.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// Validation builds a 400 problem for a malformed or invalid request.
func Validation(detail, instance string) *ProblemDetails {
	return NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", detail, instance)
}

// Unauthorized builds a 401 problem.
func Unauthorized(detail, instance string) *ProblemDetails {
	return NewProblemDetails(http.StatusUnauthorized, TypeUnauthorized, "Unauthorized", detail, instance)
}

// NotFound builds a 404 problem.
func NotFound(detail, instance string) *ProblemDetails {
	return NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", detail, instance)
}

// RateLimited builds a 429 problem.
func RateLimited(instance string) *ProblemDetails {
	return NewProblemDetails(http.StatusTooManyRequests, TypeRateLimit, "Rate Limit Exceeded",
		"too many requests, slow down", instance)
}

// Internal builds a 500 problem. The detail is deliberately generic so store
// errors never leak connection strings or SQL.
func Internal(instance string) *ProblemDetails {
	return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"the server could not complete the request", instance)
}
