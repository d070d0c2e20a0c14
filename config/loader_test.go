package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Engine.DefaultRetryMaxAttempts)
	assert.Equal(t, time.Minute, cfg.Engine.ApprovalSweepInterval)
	assert.Equal(t, "flowcore", cfg.Telemetry.ServiceName)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowcore.yaml")
	data := `
server:
  http_port: 9090
log:
  level: debug
store:
  backend: sqlite
  dsn: /tmp/flowcore.db
engine:
  approval_sweep_interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/flowcore.db", cfg.Store.DSN)
	assert.Equal(t, 30*time.Second, cfg.Engine.ApprovalSweepInterval)
	// Untouched sections keep their defaults.
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30, cfg.Engine.AuditRetentionDays)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0o600))

	t.Setenv("FLOWCORE_SERVER_HTTP_PORT", "7070")
	t.Setenv("FLOWCORE_LOG_LEVEL", "warn")
	t.Setenv("FLOWCORE_TELEMETRY_ENABLED", "true")
	t.Setenv("FLOWCORE_ENGINE_DEFAULT_RETRY_BACKOFF", "250ms")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.DefaultRetryBackoff)
}

func TestLoadCustomEnvPrefix(t *testing.T) {
	t.Setenv("ORCH_SERVER_HTTP_PORT", "6060")

	cfg, err := NewLoader().WithEnvPrefix("ORCH").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestLoadRejectsInvalidEnvValue(t *testing.T) {
	t.Setenv("FLOWCORE_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWCORE_SERVER_HTTP_PORT")
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "cassandra" }, "unknown store backend"},
		{"sqlite without dsn", func(c *Config) { c.Store.Backend = "sqlite" }, "requires a dsn"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "unknown log level"},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid http port"},
		{"bad retention", func(c *Config) { c.Engine.AuditRetentionDays = -1 }, "retention"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestWithValidatorHookRuns(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.Server.HTTPPort == 8080 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}
