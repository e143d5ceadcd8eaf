package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Cache.Kind)
	assert.Equal(t, 30*time.Second, cfg.RecordCacheTTL())
	assert.Equal(t, 6, cfg.Rotation.MaxRetries)
	assert.Equal(t, 25*time.Millisecond, cfg.RotationRetryBase())
}

func TestLoadYAML(t *testing.T) {
	path := writeYAML(t, `
server:
  addr: ":9090"
storage:
  driver: pg
  dsn: "postgres://localhost/keymint"
cache:
  kind: redis
  redis:
    addr: "localhost:6379"
    prefix: km
  record_ttl: 10s
rotation:
  max_retries: 3
  retry_base: 50ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "pg", cfg.Storage.Driver)
	assert.Equal(t, "redis", cfg.Cache.Kind)
	assert.Equal(t, "km", cfg.Cache.Redis.Prefix)
	assert.Equal(t, 10*time.Second, cfg.RecordCacheTTL())
	assert.Equal(t, 3, cfg.Rotation.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.RotationRetryBase())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("STORAGE_DRIVER", "fs")
	t.Setenv("STORAGE_FS_ROOT", "/tmp/km")
	t.Setenv("CACHE_RECORD_TTL", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "fs", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/km", cfg.Storage.FSRoot)
	assert.Equal(t, 5*time.Second, cfg.RecordCacheTTL())
}

func TestValidation(t *testing.T) {
	_, err := Load(writeYAML(t, "storage:\n  driver: cassandra\n"))
	require.Error(t, err)

	_, err = Load(writeYAML(t, "storage:\n  driver: pg\n"))
	require.Error(t, err, "pg sin dsn")

	_, err = Load(writeYAML(t, "rotation:\n  retry_base: nope\n"))
	require.Error(t, err)
}
