package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KEYGATE_STORE_READ_DSN", "postgres://read@localhost/keygate?sslmode=disable")
	t.Setenv("KEYGATE_STORE_WRITE_DSN", "postgres://write@localhost/keygate?sslmode=disable")
	t.Setenv("KEYGATE_ADMIN_TOKEN", "a-very-long-admin-token")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Store.QueryTimeout)
	assert.False(t, cfg.Clock.AllowLocalFallback)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "keygate", cfg.Telemetry.ServiceName)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KEYGATE_SERVER_PORT", "9090")
	t.Setenv("KEYGATE_CLOCK_ALLOW_LOCAL", "true")
	t.Setenv("KEYGATE_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Clock.AllowLocalFallback)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keygate.yaml")
	data := []byte(`
server:
  port: 7070
store:
  read_dsn: postgres://read@db/keygate
  write_dsn: postgres://write@db/keygate
admin:
  token: file-token-sixteen-chars
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("KEYGATE_CONFIG", path)
	t.Setenv("KEYGATE_SERVER_PORT", "7171")

	cfg, err := Load()
	require.NoError(t, err)

	// Env wins over the file; file fills what env leaves unset.
	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, "postgres://read@db/keygate", cfg.Store.ReadDSN)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing read DSN",
			env: map[string]string{
				"KEYGATE_STORE_WRITE_DSN": "postgres://write@localhost/keygate",
				"KEYGATE_ADMIN_TOKEN":     "a-very-long-admin-token",
			},
		},
		{
			name: "missing write DSN",
			env: map[string]string{
				"KEYGATE_STORE_READ_DSN": "postgres://read@localhost/keygate",
				"KEYGATE_ADMIN_TOKEN":    "a-very-long-admin-token",
			},
		},
		{
			name: "missing admin token",
			env: map[string]string{
				"KEYGATE_STORE_READ_DSN":  "postgres://read@localhost/keygate",
				"KEYGATE_STORE_WRITE_DSN": "postgres://write@localhost/keygate",
			},
		},
		{
			name: "short admin token",
			env: map[string]string{
				"KEYGATE_STORE_READ_DSN":  "postgres://read@localhost/keygate",
				"KEYGATE_STORE_WRITE_DSN": "postgres://write@localhost/keygate",
				"KEYGATE_ADMIN_TOKEN":     "short",
			},
		},
		{
			name: "port out of range",
			env: map[string]string{
				"KEYGATE_STORE_READ_DSN":  "postgres://read@localhost/keygate",
				"KEYGATE_STORE_WRITE_DSN": "postgres://write@localhost/keygate",
				"KEYGATE_ADMIN_TOKEN":     "a-very-long-admin-token",
				"KEYGATE_SERVER_PORT":     "70000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
