package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100000, cfg.Log.MaxContentLength)
	assert.Equal(t, 10, cfg.Log.BufferSize)
	assert.Equal(t, "drop", cfg.Log.FlushFailurePolicy)
	assert.Equal(t, 5173, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Pagination.DefaultPageSize)
	assert.Equal(t, 1000, cfg.Pagination.MaxPageSize)
	assert.Equal(t, 60, cfg.Cache.TTLSeconds)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)

	// The log dir is always allowlisted.
	assert.True(t, cfg.PathAllowed(cfg.Log.Dir))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  dir: /var/log/agenttrail
  buffer_size: 25
server:
  port: 9000
ratelimit:
  enabled: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/log/agenttrail", cfg.Log.Dir)
	assert.Equal(t, 25, cfg.Log.BufferSize)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.RateLimit.Enabled)
	// Unset keys keep their defaults.
	assert.Equal(t, 100000, cfg.Log.MaxContentLength)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	_, err := Load(write(t, "server:\n  port: 0\n"))
	assert.ErrorContains(t, err, "port")

	_, err = Load(write(t, "log:\n  flush_failure_policy: maybe\n"))
	assert.ErrorContains(t, err, "flush_failure_policy")

	_, err = Load(write(t, "ratelimit:\n  backend: carrier-pigeon\n"))
	assert.ErrorContains(t, err, "backend")

	_, err = Load(write(t, "ratelimit:\n  backend: redis\n"))
	assert.ErrorContains(t, err, "redis_url")
}

func TestPathAllowed(t *testing.T) {
	allowed := t.TempDir()
	cfg := &Config{Storage: StorageConfig{AllowedPaths: []string{allowed}}}

	assert.True(t, cfg.PathAllowed(allowed))
	assert.True(t, cfg.PathAllowed(filepath.Join(allowed, "sub", "dir")))
	assert.False(t, cfg.PathAllowed("/etc"))
	assert.False(t, cfg.PathAllowed(allowed+"-sibling"))

	// Traversal out of the allowed root is caught after cleaning.
	assert.False(t, cfg.PathAllowed(filepath.Join(allowed, "..", "other")))
}
