package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Len(t, cfg.Endpoints.Service, 3)
	assert.Len(t, cfg.Endpoints.Payment, 3)
	assert.Len(t, cfg.Endpoints.Delivery, 3)
	assert.Equal(t, "/admin/api/vehicle-tracking/process-payment", cfg.Endpoints.Payment[0])
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
backend:
  url: http://backend:8081
  timeout: 5s
endpoints:
  payment:
    - /v2/payments/{id}
log:
  level: debug
`), 0o644))

	t.Setenv("DESK_CONFIG", path)
	t.Setenv("BACKEND_URL", "http://override:8081")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigPath)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "http://override:8081", cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, []string{"/v2/payments/{id}"}, cfg.Endpoints.Payment)
	assert.Len(t, cfg.Endpoints.Service, 3, "unset endpoint lists keep their defaults")
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_SampleFileMatchesDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "BACKEND_URL", "BACKEND_TIMEOUT", "JWT_EXPIRY", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUST_PROXY", "MONGO_URI"} {
		t.Setenv(key, "")
	}
	t.Setenv("DESK_CONFIG", filepath.Join("..", "..", "configs", "service-desk.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Backend, cfg.Backend)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, def.Endpoints, cfg.Endpoints)
	assert.Equal(t, def.Auth.TokenTTL, cfg.Auth.TokenTTL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("DESK_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"8080\"\n"), 0o644))
	t.Setenv("DESK_CONFIG", path)
	t.Setenv("RATE_LIMIT_RPS", "fast")

	_, err := Load()
	assert.ErrorContains(t, err, "RATE_LIMIT_RPS")

	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("TRUST_PROXY", "maybe")
	_, err = Load()
	assert.ErrorContains(t, err, "TRUST_PROXY")
}

func TestValidate_EmptyEndpoints(t *testing.T) {
	cfg := Default()
	cfg.Endpoints.Invoice = nil

	assert.ErrorContains(t, cfg.Validate(), "endpoints.invoice")
}

func TestValidate_JournalNeedsSecret(t *testing.T) {
	cfg := Default()
	cfg.Mongo.URI = "mongodb://localhost:27017"

	assert.ErrorContains(t, cfg.Validate(), "jwt secret is required")

	cfg.Auth.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())

	cfg.Mongo.URI = ""
	cfg.Auth.JWTSecret = ""
	assert.NoError(t, cfg.Validate(), "pass-through tokens are fine without the journal")
}

func TestLoad_TrustProxy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit:\n  trust_proxy: true\n"), 0o644))
	t.Setenv("DESK_CONFIG", path)
	t.Setenv("MONGO_URI", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.RateLimit.TrustProxy)
	assert.False(t, Default().RateLimit.TrustProxy)

	t.Setenv("TRUST_PROXY", "false")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.TrustProxy)
}
