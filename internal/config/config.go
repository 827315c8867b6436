package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Admin     AdminConfig     `yaml:"admin" envconfig:"ADMIN"`
	Clock     ClockConfig     `yaml:"clock" envconfig:"CLOCK"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// StoreConfig contains the PostgreSQL connection settings. Two DSNs are
// required: the read DSN connects with a role restricted to SELECT on the
// licenses table, the write DSN with the elevated role used by all mutating
// operations.
type StoreConfig struct {
	ReadDSN      string        `yaml:"read_dsn" envconfig:"READ_DSN"`
	WriteDSN     string        `yaml:"write_dsn" envconfig:"WRITE_DSN"`
	QueryTimeout time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT"`
	MaxOpenConns int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
}

// AdminConfig protects the admin HTTP surface.
type AdminConfig struct {
	Token string `yaml:"token" envconfig:"TOKEN"`
}

// ClockConfig controls the authoritative time source chain. When
// AllowLocalFallback is false (the default) the server refuses to fall back
// to the local clock and fails its startup probe instead, since a local
// clock reintroduces the rollback bypass the server-side chain exists to
// prevent.
type ClockConfig struct {
	AllowLocalFallback bool `yaml:"allow_local_fallback" envconfig:"ALLOW_LOCAL"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// RateLimitConfig throttles activation attempts per client address.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
}

// Default returns the configuration baseline that file and environment
// values are layered onto.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			QueryTimeout: 5 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/keygate.log",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     1,
			Burst:   5,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "keygate",
		},
	}
}

// Load builds the configuration: defaults, then an optional YAML file (path
// taken from KEYGATE_CONFIG), then KEYGATE_* environment variables. Later
// layers win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("KEYGATE_CONFIG"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("KEYGATE", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Store.ReadDSN == "" {
		return fmt.Errorf("store read DSN is required")
	}
	if c.Store.WriteDSN == "" {
		return fmt.Errorf("store write DSN is required")
	}
	if c.Store.QueryTimeout <= 0 {
		return fmt.Errorf("store query timeout must be positive")
	}
	if c.Admin.Token == "" {
		return fmt.Errorf("admin token is required")
	}
	if len(c.Admin.Token) < 16 {
		return fmt.Errorf("admin token must be at least 16 characters")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive when enabled")
	}
	return nil
}
