package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Second, cfg.SlowRequest)
	assert.Zero(t, cfg.OpenAPICacheTTL)
	assert.Equal(t, "decisioncentral", cfg.MetricsNamespace)
}

func TestOverrides(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{
		"PORT":              "9090",
		"DATABASE_URL":      "sqlite://services.db",
		"SERVICE_DIR":       "/srv/decisions",
		"OPENAPI_CACHE_TTL": "5m",
	}})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite://services.db", cfg.DatabaseURL)
	assert.Equal(t, "/srv/decisions", cfg.ServiceDir)
	assert.Equal(t, 5*time.Minute, cfg.OpenAPICacheTTL)
}

func TestInvalid(t *testing.T) {
	for name, environment := range map[string]map[string]string{
		"port range":   {"PORT": "70000"},
		"port syntax":  {"PORT": "http"},
		"upload size":  {"MAX_UPLOAD_BYTES": "0"},
		"negative ttl": {"OPENAPI_CACHE_TTL": "-1s"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parse(env.Options{Environment: environment})
			assert.Error(t, err)
		})
	}
}
