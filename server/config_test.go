package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "taskboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
store_driver: postgres
jwt_secret: from-file
jwt_ttl: 2h
blobs:
  backend: s3
  s3_bucket: attachments
cors_origins: ["https://board.example.com"]
`), 0o600))
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("AUTH_RATE_PER_MIN", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, driverPostgres, cfg.StoreDriver)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, blobS3, cfg.Blobs.Backend)
	assert.Equal(t, "attachments", cfg.Blobs.S3Bucket)
	assert.Equal(t, []string{"https://board.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.AuthPerMin)
	assert.Equal(t, 10, cfg.AuthBurst)
	assert.Equal(t, slog.LevelDebug, cfg.slogLevel())
}

func TestLoadConfigValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DEV", "")

	_, err := loadConfig("")
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("DEV", "true")
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "dev-secret", cfg.JWTSecret)
	assert.Equal(t, driverMongo, cfg.StoreDriver)

	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = loadConfig("")
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Empty(t, splitList(""))
}
