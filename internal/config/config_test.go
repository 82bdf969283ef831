package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "UPLOAD_MAX_BYTES", "UPLOAD_GATE_POLICY", "CORS_ALLOWED_ORIGINS", "ROSTER_WATCH"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(10<<20), cfg.UploadMaxBytes)
	assert.Equal(t, "reject", cfg.UploadGatePolicy)
	assert.Equal(t, 30*time.Second, cfg.UploadParseTimeout())
	assert.Equal(t, 15*time.Minute, cfg.DistributionCacheTTL())
	assert.True(t, cfg.RosterWatch)
	assert.Nil(t, cfg.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPLOAD_MAX_BYTES", "2048")
	t.Setenv("UPLOAD_GATE_WAIT_MS", "250")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("ROSTER_WATCH", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, int64(2048), cfg.UploadMaxBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.UploadGateWait())
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.False(t, cfg.RosterWatch)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLoadDotEnvKeepsProcessValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOTENV_ONLY=from-file\nDOTENV_SHARED=from-file\n"), 0o644))

	t.Setenv("DOTENV_SHARED", "from-process")
	t.Setenv("DOTENV_ONLY", "")
	require.NoError(t, os.Unsetenv("DOTENV_ONLY"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, ".env.local"), ""))
	assert.Equal(t, "from-file", os.Getenv("DOTENV_ONLY"))
	assert.Equal(t, "from-process", os.Getenv("DOTENV_SHARED"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("chatty"))
}

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("upload distributed", "distribution_id", "d-1")

	assert.Contains(t, stderr.String(), "distribution_id=d-1")
	assert.Contains(t, file.String(), `"distribution_id":"d-1"`)
	assert.NotContains(t, stderr.String(), "hidden")
}

func TestSetupLoggerWithWritersStderrOnly(t *testing.T) {
	var stderr bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, nil, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("roster is empty")

	assert.Contains(t, stderr.String(), `msg="roster is empty"`)
	assert.NotContains(t, stderr.String(), "hidden")
}

func TestSetupLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("started")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
}
