package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	groomer := cfg.GetGroomer()
	assert.Equal(t, 2, groomer.MaxDepth)
	assert.Equal(t, "mail-groomer.local", groomer.MessageIDDomain)
	assert.Empty(t, groomer.ExtraMaliciousExtensions)

	server, err := cfg.GetServer()
	require.NoError(t, err)
	assert.Equal(t, "postfix", server.FilterType)
	assert.Equal(t, "0.0.0.0:10025", server.ListenAddress)
	assert.Equal(t, int64(31457280), server.MaxMessageBytes)
	assert.Equal(t, 30*time.Second, server.ProcessTimeout)

	delivery, err := cfg.GetDelivery()
	require.NoError(t, err)
	assert.Equal(t, "smtp", delivery.Type)
	assert.Equal(t, "127.0.0.1", delivery.SMTP.Address)
	assert.Equal(t, 10026, delivery.SMTP.Port)
	assert.Equal(t, uint32(1), delivery.SMTP.BreakerMaxRequests)
	assert.Equal(t, "us-east-1", delivery.SES.Region)

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.False(t, cache.Enabled)
	assert.Equal(t, "memory", cache.Type)
	assert.Equal(t, 24*time.Hour, cache.TTL)
	assert.Equal(t, time.Hour, cache.CleanupFrequency)
	assert.Equal(t, "localhost:6379", cache.RedisAddress)

	metrics := cfg.GetMetrics()
	assert.True(t, metrics.Enabled)
	assert.Equal(t, "0.0.0.0:9108", metrics.ListenAddress)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groomer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
groomer:
  max_depth: 4
  extra_malicious_extensions: [".one", ".iso"]
delivery:
  type: directory
  directory:
    path: /var/spool/groomed
cache:
  enabled: true
  type: sqlite
  ttl: 2h
`), 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	groomer := cfg.GetGroomer()
	assert.Equal(t, 4, groomer.MaxDepth)
	assert.Equal(t, []string{".one", ".iso"}, groomer.ExtraMaliciousExtensions)

	delivery, err := cfg.GetDelivery()
	require.NoError(t, err)
	assert.Equal(t, "directory", delivery.Type)
	assert.Equal(t, "/var/spool/groomed", delivery.Directory)

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.True(t, cache.Enabled)
	assert.Equal(t, "sqlite", cache.Type)
	assert.Equal(t, 2*time.Hour, cache.TTL)
	// untouched keys keep their defaults
	assert.Equal(t, time.Hour, cache.CleanupFrequency)
}

func TestNewFromFileMissing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("MAIL_GROOMER_CACHE_TYPE", "redis")
	t.Setenv("MAIL_GROOMER_GROOMER_MAX_DEPTH", "5")

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.Equal(t, "redis", cache.Type)
	assert.Equal(t, 5, cfg.GetGroomer().MaxDepth)
}

func TestInvalidDuration(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("server.process_timeout", "soon")

	_, err := cfg.GetServer()
	assert.ErrorContains(t, err, "server.process_timeout")
}
