package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// AdminAuth guards the administrative surface with a static bearer token.
// Comparison is constant-time. The read-only verification endpoints never
// pass through here: clients hold no credential at all.
func AdminAuth(token string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				logger.WarnContext(r.Context(), "admin auth rejected",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)

				w.Header().Set("Content-Type", "application/problem+json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="keygate-admin"`)
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"type":"/errors/unauthorized","title":"Unauthorized","status":401,"detail":"missing or invalid admin token"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
