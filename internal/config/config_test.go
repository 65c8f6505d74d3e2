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
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/portal.db", cfg.Database.DSN)
	assert.Equal(t, "sa-east-1", cfg.Storage.Region)
	assert.Equal(t, "account-portal", cfg.Auth.Issuer)
	assert.Equal(t, 168*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.Auth.CleanupInterval)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 20, cfg.RPC.MaxBatchSize)
	assert.Equal(t, 8, cfg.RPC.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.RPC.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.ErrorIs(t, cfg.Validate(), ErrMissingJWTSecret)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORTAL_AUTH_JWTSECRET", "s3cret")
	t.Setenv("PORTAL_DATABASE_DRIVER", "postgres")
	t.Setenv("PORTAL_DATABASE_DSN", "postgres://portal@localhost/portal")
	t.Setenv("PORTAL_RPC_REQUESTTIMEOUT", "5s")
	t.Setenv("PORTAL_SERVER_TRUSTEDORIGINS", "http://localhost:3000,https://app.example.com")
	t.Setenv("PORTAL_REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.RPC.RequestTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.Server.TrustedOrigins)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.NoError(t, cfg.Validate())
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"# local settings\nPORTAL_STORAGE_BUCKET=\"avatars\"\nexport PORTAL_LOG_LEVEL=debug\nPORTAL_SERVER_ADDR=127.0.0.1:1\n",
	), 0o600))
	t.Setenv("PORTAL_SERVER_ADDR", "127.0.0.1:9090")
	t.Setenv("PORTAL_STORAGE_BUCKET", "")
	require.NoError(t, os.Unsetenv("PORTAL_STORAGE_BUCKET"))
	t.Setenv("PORTAL_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("PORTAL_LOG_LEVEL"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "avatars", cfg.Storage.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	var cfg Config
	cfg.Auth.JWTSecret = "x"
	cfg.Database.Driver = "mysql"
	cfg.RPC.MaxBatchSize = 1
	cfg.RPC.MaxConcurrency = 1
	assert.Error(t, cfg.Validate())
}
