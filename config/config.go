// Package config loads the engine configuration: defaults, then an
// optional YAML file, then environment-variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("flowcore.yaml").
//	    WithEnvPrefix("FLOWCORE").
//	    Load()
package config

import (
	"fmt"
	"time"
)

// Config is the full engine configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Store     StoreConfig     `yaml:"store" env:"STORE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Provider  ProviderConfig  `yaml:"provider" env:"PROVIDER"`
	Engine    EngineConfig    `yaml:"engine" env:"ENGINE"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the daemon's HTTP surface.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend: memory, sqlite or postgres.
	Backend string `yaml:"backend" env:"BACKEND"`
	// DSN is the sqlite path or postgres connection string.
	DSN string `yaml:"dsn" env:"DSN"`
}

// RedisConfig configures the optional redis-backed memory store and rate
// limiter. An empty Addr keeps both in process.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// ProviderConfig configures the completion-service endpoint. The persona
// model on each agent takes precedence; Model here is the fallback.
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EngineConfig tunes run behavior.
type EngineConfig struct {
	// DefaultRetryMaxAttempts etc. seed the retry policy applied when a
	// step or capability declares none.
	DefaultRetryMaxAttempts int           `yaml:"default_retry_max_attempts" env:"DEFAULT_RETRY_MAX_ATTEMPTS"`
	DefaultRetryBackoff     time.Duration `yaml:"default_retry_backoff" env:"DEFAULT_RETRY_BACKOFF"`
	ApprovalSweepInterval   time.Duration `yaml:"approval_sweep_interval" env:"APPROVAL_SWEEP_INTERVAL"`
	AuditRetentionDays      int           `yaml:"audit_retention_days" env:"AUDIT_RETENTION_DAYS"`
	MemoryEntriesPerAgent   int           `yaml:"memory_entries_per_agent" env:"MEMORY_ENTRIES_PER_AGENT"`
}

// TelemetryConfig configures OTel tracing.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Engine: EngineConfig{
			DefaultRetryMaxAttempts: 3,
			DefaultRetryBackoff:     time.Second,
			ApprovalSweepInterval:   time.Minute,
			AuditRetentionDays:      30,
			MemoryEntriesPerAgent:   50,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "flowcore",
		},
	}
}

// Validate rejects configurations the daemon cannot start with.
func Validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "memory":
	case "sqlite", "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store backend %q requires a dsn", cfg.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", cfg.Server.HTTPPort)
	}
	if cfg.Engine.AuditRetentionDays <= 0 {
		return fmt.Errorf("audit retention must be positive, got %d", cfg.Engine.AuditRetentionDays)
	}
	return nil
}
