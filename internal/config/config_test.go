package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, DefaultHost, cfg.Gateway.Host)
	assert.Equal(t, "memory", cfg.Approval.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Approval.MaxAge)
	assert.Equal(t, DefaultSweepSchedule, cfg.Approval.SweepSchedule)
	assert.Equal(t, DefaultMaxIterations, cfg.Engine.MaxIterations)
	assert.Zero(t, cfg.Engine.ApprovalTimeout)
	assert.Zero(t, cfg.Batch.MaxConcurrency)
	assert.Equal(t, time.Hour, cfg.Capability.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.Engine.RunRetention)
	assert.Equal(t, 30*24*time.Hour, cfg.Storage.Retention)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gateway:
  port: 9000
  host: "0.0.0.0"
approval:
  max_age: 2h
batch:
  max_concurrency: 4
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, "0.0.0.0", cfg.Gateway.Host)
	assert.Equal(t, 2*time.Hour, cfg.Approval.MaxAge)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep defaults
	assert.Equal(t, "memory", cfg.Approval.Backend)
	assert.Equal(t, configFile, Path())
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("gateway: [unclosed"), 0644))

	_, err := Load(configFile)
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("REELGATE_GATEWAY_PORT", "7777")
	t.Setenv("REELGATE_APPROVAL_BACKEND", "redis")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Gateway.Port)
	assert.Equal(t, "redis", cfg.Approval.Backend)
}

func TestValidate(t *testing.T) {
	Reset()
	defer Reset()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Gateway.Port = 0 }},
		{"auth without secret", func(c *Config) { c.Gateway.Auth.Enabled = true }},
		{"unknown backend", func(c *Config) { c.Approval.Backend = "etcd" }},
		{"redis without addr", func(c *Config) { c.Approval.Backend = "redis" }},
		{"zero max age", func(c *Config) { c.Approval.MaxAge = 0 }},
		{"zero iterations", func(c *Config) { c.Engine.MaxIterations = 0 }},
		{"negative concurrency", func(c *Config) { c.Batch.MaxConcurrency = -1 }},
		{"credits without endpoint", func(c *Config) { c.Credits.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSaveTo(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveTo(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
