package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"CONFIG_FILE", "PORT", "ENV", "LOG_LEVEL", "REDIS_URL", "REDIS_TIMEOUT_MS",
	"PATTERN_KEY_PREFIX", "PATTERN_TTL_DAYS", "WORKER_ID", "CONSUMER_GROUP",
	"CONSUMER_MAX_RETRIES", "FEEDBACK_RATE_LIMIT", "ALLOWED_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "", cfg.RedisURL)
	assert.Equal(t, 500*time.Millisecond, cfg.RedisTimeout())
	assert.Equal(t, "learned_patterns:", cfg.PatternKeyPrefix)
	assert.Equal(t, 30*24*time.Hour, cfg.PatternTTL())
	assert.Equal(t, "classifier-workers", cfg.ConsumerGroup)
	assert.Equal(t, 3, cfg.ConsumerMaxRetries)
	assert.Equal(t, 60, cfg.FeedbackRateLimit)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.NotEmpty(t, cfg.WorkerID)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("PATTERN_TTL_DAYS", "7")
	t.Setenv("FEEDBACK_RATE_LIMIT", "0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	assert.Equal(t, 7*24*time.Hour, cfg.PatternTTL())
	assert.Equal(t, 0, cfg.FeedbackRateLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 500, cfg.RedisTimeoutMS)
}

func TestLoad_MalformedNumbers(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"word", "PATTERN_TTL_DAYS", "thirty"},
		{"trailing garbage", "REDIS_TIMEOUT_MS", "-5x"},
		{"float", "CONSUMER_MAX_RETRIES", "2.5"},
		{"not a number", "FEEDBACK_RATE_LIMIT", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), envKeys[tt.key])
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "classifier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pattern_ttl_days: thirty\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("port: [unclosed\n"), 0o600))
	_, err = Load()
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "classifier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
redis_url: redis://cache:6379/0
pattern_key_prefix: "patterns:"
consumer_group: file-group
allowed_origins:
  - https://app.example
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CONSUMER_GROUP", "env-group")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, "patterns:", cfg.PatternKeyPrefix)
	assert.Equal(t, "env-group", cfg.ConsumerGroup)
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.PatternTTLDays)
	assert.Equal(t, 500, cfg.RedisTimeoutMS, "unset keys keep their defaults")
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("PATTERN_TTL_DAYS", "0")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("FEEDBACK_RATE_LIMIT", "-1")
	_, err = Load()
	assert.Error(t, err)
}
