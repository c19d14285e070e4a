package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoad_Layers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  http_addr: ":8080"
mysql:
  dsn: "base-dsn"
recovery:
  ttl: 15m
security:
  jwt_secret: ""
checkout:
  payment_methods: ["cash", "pix"]
`)
	writeFile(t, dir, "staging.yaml", `
mysql:
  dsn: "staging-dsn"
security:
  jwt_secret: "from-file"
`)
	t.Setenv("TABERNA_SECURITY__JWT_SECRET", "from-env")
	t.Setenv("TABERNA_RECOVERY__MAX_ATTEMPTS", "5")

	cfg, err := Load(dir, "staging")
	require.NoError(t, err)
	assert.Equal(t, "staging-dsn", cfg.MySQL.DSN)
	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
	assert.Equal(t, 5, cfg.Recovery.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Recovery.TTL)
	assert.Equal(t, []string{"cash", "pix"}, cfg.Checkout.PaymentMethods)
	assert.Equal(t, "staging", cfg.App.Env)
	assert.False(t, cfg.Development())
}

func TestLoad_MissingEnvFileIsOptional(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  http_addr: ":8080"
mysql:
  dsn: "dsn"
security:
  jwt_secret: "s"
`)
	cfg, err := Load(dir, "dev")
	require.NoError(t, err)
	assert.True(t, cfg.Development())
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  http_addr: ":8080"
mysql:
  dsn: "dsn"
`)
	_, err := Load(dir, "prod")
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestLoad_MissingBase(t *testing.T) {
	_, err := Load(t.TempDir(), "dev")
	assert.ErrorContains(t, err, "load base")
}
