package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/license"
	"keygate/internal/store"
)

func adminRouter(fake *fakeAuthority) http.Handler {
	return NewAdminHandler(fake, discardLogger()).Routes()
}

func sampleLicense() *store.License {
	notes := "annual deal"
	return &store.License{
		Key:            uuid.MustParse("8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71"),
		ClientName:     "Acme",
		ExpirationDate: time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
		Notes:          &notes,
		CreatedAt:      time.Date(2026, time.August, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestAdminCreate(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		fake := &fakeAuthority{createRes: sampleLicense()}
		body := `{"client_name":"Acme","duration_months":4,"notes":"annual deal"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		got := problemOf(t, rec)
		assert.Equal(t, "8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71", got["license_key"])
		assert.Equal(t, "2026-12-01", got["expiration_date"])
		assert.Equal(t, 4, fake.gotMonths)
	})

	t.Run("rejects zero duration", func(t *testing.T) {
		fake := &fakeAuthority{}
		body := `{"client_name":"Acme","duration_months":0}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing client name", func(t *testing.T) {
		fake := &fakeAuthority{}
		body := `{"duration_months":3}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdminList(t *testing.T) {
	t.Run("returns views", func(t *testing.T) {
		fake := &fakeAuthority{listRes: []store.License{*sampleLicense()}}
		req := httptest.NewRequest(http.MethodGet, "/?status=active", nil)
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		got := problemOf(t, rec)
		assert.Equal(t, float64(1), got["count"])
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		fake := &fakeAuthority{}
		req := httptest.NewRequest(http.MethodGet, "/?status=bogus", nil)
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdminStats(t *testing.T) {
	fake := &fakeAuthority{statsRes: &store.Stats{Total: 5, Active: 3, Expired: 1, Revoked: 1}}
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	adminRouter(fake).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := problemOf(t, rec)
	assert.Equal(t, float64(5), got["total"])
}

func TestAdminLifecycle(t *testing.T) {
	key := "8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71"

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"revoke", http.MethodPost, "/" + key + "/revoke"},
		{"reactivate", http.MethodPost, "/" + key + "/reactivate"},
		{"unbind", http.MethodPost, "/" + key + "/unbind"},
		{"reset", http.MethodPost, "/" + key + "/reset"},
		{"delete", http.MethodDelete, "/" + key},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAuthority{}
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			adminRouter(fake).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, key, fake.gotKey)
		})
	}
}

func TestAdminLifecycleErrors(t *testing.T) {
	key := "8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71"

	t.Run("revoke ambiguity renders 404", func(t *testing.T) {
		fake := &fakeAuthority{opErr: license.NewError(license.KindNotFoundOrRevoked, "license not found or already in the requested state")}
		req := httptest.NewRequest(http.MethodPost, "/"+key+"/revoke", nil)
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		got := problemOf(t, rec)
		assert.Equal(t, "/errors/license/not-found-or-revoked", got["type"])
	})

	t.Run("malformed key renders 400", func(t *testing.T) {
		fake := &fakeAuthority{opErr: license.NewError(license.KindInvalidKeyFormat, "invalid license key format, expected a UUID")}
		req := httptest.NewRequest(http.MethodPost, "/not-a-uuid/revoke", nil)
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdminExtend(t *testing.T) {
	key := "8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71"

	t.Run("returns new expiration", func(t *testing.T) {
		fake := &fakeAuthority{extendRes: time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC)}
		body := `{"additional_months":2}`
		req := httptest.NewRequest(http.MethodPost, "/"+key+"/extend", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		got := problemOf(t, rec)
		assert.Equal(t, "2027-01-15", got["new_expiration_date"])
		assert.Equal(t, 2, fake.gotMonths)
	})

	t.Run("rejects missing months", func(t *testing.T) {
		fake := &fakeAuthority{}
		req := httptest.NewRequest(http.MethodPost, "/"+key+"/extend", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdminGetByFingerprint(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		fake := &fakeAuthority{getRes: sampleLicense()}
		req := httptest.NewRequest(http.MethodGet, "/by-fingerprint/0123456789abcdef0123456789abcdef", nil)
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0123456789abcdef0123456789abcdef", fake.gotFingerprint)
	})

	t.Run("unbound machine renders 404", func(t *testing.T) {
		fake := &fakeAuthority{getErr: license.NewError(license.KindNotFound, "no license bound to this machine")}
		req := httptest.NewRequest(http.MethodGet, "/by-fingerprint/0123456789abcdef0123456789abcdef", nil)
		rec := httptest.NewRecorder()

		adminRouter(fake).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminGet(t *testing.T) {
	fake := &fakeAuthority{getRes: sampleLicense()}
	req := httptest.NewRequest(http.MethodGet, "/8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71", nil)
	rec := httptest.NewRecorder()

	adminRouter(fake).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := problemOf(t, rec)
	assert.Equal(t, "Acme", got["client_name"])
}
