package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflock/dataflock/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultServerReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, config.DefaultServerShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, config.DefaultLogLevel, cfg.Log.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataflock.yaml")

	content := "server:\n  addr: \"0.0.0.0:9000\"\n  read_timeout: 5s\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, config.DefaultServerWriteTimeout, cfg.Server.WriteTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATAFLOCK_SERVER_ADDR", "127.0.0.1:7777")
	t.Setenv("DATAFLOCK_LOG_LEVEL", "warn")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7777", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigInvalidLevel(t *testing.T) {
	t.Setenv("DATAFLOCK_LOG_LEVEL", "loud")

	_, err := config.LoadConfig("")
	require.ErrorIs(t, err, config.ErrInvalidLogLevel)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := config.Config{
		Server: config.ServerConfig{Addr: "localhost:1"},
		Log:    config.LogConfig{Level: "info"},
	}
	require.NoError(t, valid.Validate())

	noAddr := valid
	noAddr.Server.Addr = ""
	require.ErrorIs(t, noAddr.Validate(), config.ErrEmptyServerAddr)

	negative := valid
	negative.Server.ReadTimeout = -time.Second
	require.ErrorIs(t, negative.Validate(), config.ErrNegativeTimeout)
}
