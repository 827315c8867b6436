package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/license"
)

const testFingerprint = "0123456789abcdef0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientVerify(t *testing.T) {
	t.Run("licensed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/license/verify", r.URL.Path)
			assert.Equal(t, testFingerprint, r.URL.Query().Get("fingerprint"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"licensed":        true,
				"client_name":     "Acme",
				"days_remaining":  21,
				"expiration_date": "2026-09-16",
			})
		}))
		defer srv.Close()

		res, err := New(srv.URL, WithLogger(discardLogger())).Verify(context.Background(), testFingerprint)
		require.NoError(t, err)
		assert.True(t, res.Licensed)
		assert.Equal(t, "Acme", res.ClientName)
		assert.Equal(t, 21, res.DaysRemaining)
	})

	t.Run("problem maps to kind", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"type":"/errors/license/expired","title":"License Expired","status":403,"detail":"license expired 3 day(s) ago","error_code":"EXPIRED"}`))
		}))
		defer srv.Close()

		_, err := New(srv.URL, WithLogger(discardLogger())).Verify(context.Background(), testFingerprint)
		assert.Equal(t, license.KindExpired, license.KindOf(err))
		assert.Contains(t, err.Error(), "3 day(s) ago")
	})

	t.Run("unreachable service maps to store error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		_, err := New(srv.URL, WithLogger(discardLogger())).Verify(context.Background(), testFingerprint)
		assert.Equal(t, license.KindStore, license.KindOf(err))
	})

	t.Run("problem without error_code maps to store error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream exploded"))
		}))
		defer srv.Close()

		_, err := New(srv.URL, WithLogger(discardLogger())).Verify(context.Background(), testFingerprint)
		assert.Equal(t, license.KindStore, license.KindOf(err))
	})
}

func TestClientActivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/license/activate", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, testFingerprint, payload["fingerprint"])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"client_name": "Acme",
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL, WithLogger(discardLogger())).
		Activate(context.Background(), "8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71", testFingerprint)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Acme", res.ClientName)
}

func TestGateCheck(t *testing.T) {
	fingerprint := func() string { return testFingerprint }

	t.Run("licensed machine proceeds without prompting", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"licensed": true, "client_name": "Acme", "days_remaining": 10,
			})
		}))
		defer srv.Close()

		prompted := false
		gate := NewGate(New(srv.URL, WithLogger(discardLogger())), fingerprint,
			PromptFunc(func(context.Context) (string, error) {
				prompted = true
				return "", nil
			}), discardLogger())

		res, err := gate.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Acme", res.ClientName)
		assert.False(t, prompted)
	})

	t.Run("unknown machine activates prompted key", func(t *testing.T) {
		var activated bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/license/verify":
				if !activated {
					w.WriteHeader(http.StatusNotFound)
					w.Write([]byte(`{"type":"/errors/license/not-found","title":"License Not Found","status":404,"detail":"no license found for this machine, activation required","error_code":"NOT_FOUND"}`))
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"licensed": true, "client_name": "Acme", "days_remaining": 30,
				})
			case "/api/license/activate":
				activated = true
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": true, "client_name": "Acme",
				})
			}
		}))
		defer srv.Close()

		gate := NewGate(New(srv.URL, WithLogger(discardLogger())), fingerprint,
			PromptFunc(func(context.Context) (string, error) {
				return "8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71", nil
			}), discardLogger())

		res, err := gate.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 30, res.DaysRemaining)
	})

	t.Run("expired denies startup without prompting", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"type":"/errors/license/expired","title":"License Expired","status":403,"detail":"license expired 9 day(s) ago","error_code":"EXPIRED"}`))
		}))
		defer srv.Close()

		prompted := false
		gate := NewGate(New(srv.URL, WithLogger(discardLogger())), fingerprint,
			PromptFunc(func(context.Context) (string, error) {
				prompted = true
				return "", nil
			}), discardLogger())

		_, err := gate.Check(context.Background())
		assert.Equal(t, license.KindExpired, license.KindOf(err))
		assert.False(t, prompted)
	})

	t.Run("unreachable service denies startup", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		gate := NewGate(New(srv.URL, WithLogger(discardLogger())), fingerprint, NoPrompt, discardLogger())
		_, err := gate.Check(context.Background())
		assert.Equal(t, license.KindStore, license.KindOf(err))
	})

	t.Run("no prompt configured denies unknown machine", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"type":"/errors/license/not-found","title":"License Not Found","status":404,"error_code":"NOT_FOUND"}`))
		}))
		defer srv.Close()

		gate := NewGate(New(srv.URL, WithLogger(discardLogger())), fingerprint, nil, discardLogger())
		_, err := gate.Check(context.Background())
		assert.Equal(t, license.KindNotFound, license.KindOf(err))
	})
}

func TestStdinPrompt(t *testing.T) {
	var out strings.Builder
	prompter := StdinPrompt(strings.NewReader("  8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71 \n"), &out)

	key, err := prompter.PromptKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8c2f7e4a-1f0b-4f84-9d3a-6a1f0c9b2d71", key)
	assert.Contains(t, out.String(), "Enter license key")
}
