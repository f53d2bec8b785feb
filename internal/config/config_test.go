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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "grpc", cfg.Classify.Backend)
	assert.Equal(t, 1, cfg.Classify.Concurrency)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, 6, cfg.Batch.MaxImages)
	assert.Equal(t, 30*time.Second, cfg.Classify.Timeout)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.NATS.URL)
	assert.Empty(t, cfg.HTTP.TrustedProxies)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DAMAGE_HTTP_ADDR", ":9090")
	t.Setenv("DAMAGE_DATABASE_DRIVER", "postgres")
	t.Setenv("DAMAGE_DATABASE_DSN", "host=db user=u dbname=d sslmode=disable")
	t.Setenv("DAMAGE_CLASSIFIER_BACKEND", "http")
	t.Setenv("DAMAGE_CLASSIFIER_TIMEOUT", "5s")
	t.Setenv("DAMAGE_BATCH_WORKERS", "3")
	t.Setenv("DAMAGE_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "http", cfg.Classify.Backend)
	assert.Equal(t, 5*time.Second, cfg.Classify.Timeout)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
http:
  trusted_proxies:
    - 10.0.0.0/8
    - 192.168.1.10
redis:
  addr: redis:6379
storage:
  uploads_dir: /data/uploads
cost_table_path: /etc/damage/costs.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "/data/uploads", cfg.Storage.UploadsDir)
	assert.Equal(t, "predicted", cfg.Storage.PredictedDir)
	assert.Equal(t, "/etc/damage/costs.yaml", cfg.CostTablePath)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.HTTP.TrustedProxies)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DAMAGE_DATABASE_DRIVER", "mysql")
	t.Setenv("DAMAGE_BATCH_MAX_IMAGES", "10")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "batch.max_images")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
