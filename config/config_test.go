package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 30, cfg.ReportWindowDays)
	assert.Equal(t, 4, cfg.ReportConcurrency)
	assert.Equal(t, 60, cfg.BufferMinutes)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REPORT_WINDOW_DAYS", "7")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 7, cfg.ReportWindowDays)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Config{
		ReportWindowDays:  0,
		ReportConcurrency: -1,
		BufferMinutes:     -5,
		LoggerFormat:      "xml",
		RedisAddr:         "localhost:6379",
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"REPORT_WINDOW_DAYS", "REPORT_CONCURRENCY", "BUFFER_MINUTES", "LOGGER_FORMAT", "LOCK_TTL"} {
		assert.Contains(t, err.Error(), want)
	}
}
