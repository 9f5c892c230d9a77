package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "GW01", cfg.UETR.SystemID)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL())
	assert.Equal(t, 72*time.Hour, cfg.QueueExpiry())
	assert.Equal(t, 5, cfg.Queue.DrainWorkers)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  shutdown_timeout_seconds: 15
database:
  dsn: postgres://gateway:secret@db:5432/gateway
uetr:
  system_id: PE01
queue:
  expiry_hours: 48
adapters:
  samos: https://samos.example/api
policies:
  samos:
    retry:
      max_attempts: 5
    circuit_breaker:
      failure_rate_threshold: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 15, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres://gateway:secret@db:5432/gateway", cfg.Database.DSN)
	assert.Equal(t, "PE01", cfg.UETR.SystemID)
	assert.Equal(t, 48*time.Hour, cfg.QueueExpiry())
	assert.Equal(t, "https://samos.example/api", cfg.Adapters["samos"])

	policy := cfg.Policies["samos"].Policy
	assert.Equal(t, 5, policy.Retry.MaxAttempts)
	assert.Equal(t, float64(30), policy.CircuitBreaker.FailureRateThreshold)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
uetr:
  system_id: PE01
`)
	t.Setenv("GATEWAY_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env-wins")
	t.Setenv("UETR_SYSTEM_ID", "EV01")
	t.Setenv("QUEUE_EXPIRY_HOURS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "postgres://env-wins", cfg.Database.DSN)
	assert.Equal(t, "EV01", cfg.UETR.SystemID)
	assert.Equal(t, 12*time.Hour, cfg.QueueExpiry())
}

func TestBadQueueExpiryEnvIsIgnored(t *testing.T) {
	t.Setenv("QUEUE_EXPIRY_HOURS", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 72, cfg.Queue.ExpiryHours)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
