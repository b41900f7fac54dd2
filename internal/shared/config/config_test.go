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
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("MAX_UPLOAD_BYTES", "")
	t.Setenv("MARKET_DATA_SOURCE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.LLMProvider)
	assert.Equal(t, "mock", cfg.MarketDataSource)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 24*time.Hour, cfg.MarketDataCacheTTL)
	assert.Equal(t, 5, cfg.MarketDataRequestsPerMinute)
	assert.Contains(t, cfg.RateLimits, "POLLING")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "prod")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("MARKET_DATA_CACHE_TTL", "90m")
	t.Setenv("RATE_LIMIT_UPLOAD_RPS", "1.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "s3", cfg.ObjectStoreType)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigin)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, 90*time.Minute, cfg.MarketDataCacheTTL)
	assert.Equal(t, 1.5, cfg.RateLimits["UPLOAD"].RPS)
}

func TestLoadYAMLFileBelowEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("port: 7000\nllm_model: gpt-4o-mini\nmarket_data_source: alphavantage\ncors_allow_origins:\n  - https://one.example\n  - https://two.example\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("LLM_MODEL", "gpt-4.1")
	t.Setenv("MARKET_DATA_SOURCE", "")
	t.Setenv("CORS_ALLOW_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "gpt-4.1", cfg.LLMModel)
	assert.Equal(t, "alphavantage", cfg.MarketDataSource)
	assert.Equal(t, []string{"https://one.example", "https://two.example"}, cfg.CORSAllowOrigin)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestInvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENV", "")
	t.Setenv("MAX_UPLOAD_BYTES", "ten")
	t.Setenv("DOWNLOAD_URL_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 15*time.Minute, cfg.DownloadURLTTL)
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], "download_url_ttl")
	assert.Contains(t, cfg.Warnings[1], "max_upload_bytes")
}

func TestLoadWorkerAndPoolSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("worker_concurrency: 8\nsqs_visibility_timeout_seconds: 600\nshutdown_timeout_seconds: 45\ndb_max_open_conns: 12\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("SQS_VISIBILITY_TIMEOUT_SECONDS", "")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Worker{Concurrency: 8, VisibilitySeconds: 600, ShutdownTimeout: 45 * time.Second}, cfg.Worker)
	assert.Equal(t, 12, cfg.DBPool.MaxOpenConns)
	assert.Equal(t, 45*time.Second, cfg.DBPool.ConnMaxIdleTime)
	assert.Zero(t, cfg.DBPool.MaxIdleConns)
}
