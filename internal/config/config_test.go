package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"TODOS_CONFIG", "DATABASE_URL", "HOST", "PORT", "LOG_LEVEL",
	"REQUEST_TIMEOUT", "SHUTDOWN_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"CORS_ALLOWED_ORIGINS", "TRACES_EXPORTER",
}

// clearEnv unsets every key Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///todos.db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:5000", cfg.Addr())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
	assert.Equal(t, "none", cfg.TracesExporter)
	assert.Zero(t, cfg.RateLimitRPS)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://todos@localhost/todos")
	t.Setenv("PORT", "8081")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://todos@localhost/todos", cfg.DatabaseURL)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}

func TestLoad_TOMLFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "todos.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url = "sqlite:///from-file.db"
port = 7000
request_timeout = "30s"
traces_exporter = "stdout"
`), 0o600))

	t.Setenv("TODOS_CONFIG", path)
	t.Setenv("PORT", "7001")

	cfg, err := load(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///from-file.db", cfg.DatabaseURL)
	assert.Equal(t, 7001, cfg.Port, "environment wins over the file")
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "stdout", cfg.TracesExporter)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("DATABASE_URL=memory://\nPORT=6000\n"), 0o600))

	t.Setenv("PORT", "6001")
	t.Cleanup(func() { _ = os.Unsetenv("DATABASE_URL") })

	cfg, err := load(dotenv)
	require.NoError(t, err)

	assert.Equal(t, "memory://", cfg.DatabaseURL)
	assert.Equal(t, 6001, cfg.Port)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "http"},
		{"PORT", "70000"},
		{"REQUEST_TIMEOUT", "soon"},
		{"LOG_LEVEL", "loud"},
		{"TRACES_EXPORTER", "zipkin"},
		{"RATE_LIMIT_RPS", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := load(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)

			var invalid ErrInvalidValue
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.key, invalid.Key)
		})
	}
}
