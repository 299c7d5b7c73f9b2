package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"handsup/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "local", cfg.Feed)
	assert.Equal(t, config.TokenTTL, cfg.JWTTTL)
	assert.Equal(t, config.ForceLeaveDelay, cfg.ForceLeaveDelay)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("HANDSUP_HTTP_ADDR", ":9090")
	t.Setenv("HANDSUP_DB_DRIVER", "Postgres")
	t.Setenv("HANDSUP_FEED", "postgres")
	t.Setenv("HANDSUP_FORCE_LEAVE_DELAY", "5s")
	t.Setenv("HANDSUP_TELEGRAM_CHAT_ID", "-100123")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres", cfg.Feed)
	assert.Equal(t, 5*time.Second, cfg.ForceLeaveDelay)
	assert.Equal(t, int64(-100123), cfg.TelegramChatID)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HANDSUP_PUBLIC_URL=https://class.example/\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("HANDSUP_PUBLIC_URL") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://class.example/", cfg.PublicURL)
}

func TestValidate(t *testing.T) {
	t.Setenv("HANDSUP_FEED", "postgres")
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err, "postgres feed on sqlite")

	t.Setenv("HANDSUP_FEED", "carrier-pigeon")
	_, err = config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("HANDSUP_FEED", "local")
	t.Setenv("HANDSUP_ENV", "production")
	_, err = config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err, "default secret in production")
}
