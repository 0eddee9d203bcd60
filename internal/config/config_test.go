package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RAILGUN_HOME_DIR", filepath.Join(home, ".railgun"))
	t.Setenv("RAILGUN_SERVER_URL", "")
	t.Setenv("RAILGUN_DEBUG", "")
	t.Setenv("DEBUG", "")
	t.Setenv("RAILGUN_LOG_LEVEL", "")
	t.Setenv("RAILGUN_CONNECT_TIMEOUT", "")
	t.Setenv("RAILGUN_PENDING_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://api.railgun.chat", cfg.ServerURL)
	require.Equal(t, filepath.Join(home, ".railgun"), cfg.RailgunHome)
	require.Equal(t, filepath.Join(cfg.RailgunHome, "access.token"), cfg.AccessToken)
	require.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	require.Equal(t, time.Second, cfg.ReconnectFloor)
	require.Equal(t, 5*time.Second, cfg.ReconnectCeiling)
	require.Equal(t, 30*time.Second, cfg.PendingTimeout)
	require.DirExists(t, cfg.RailgunHome)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RAILGUN_HOME_DIR", t.TempDir())
	t.Setenv("RAILGUN_SERVER_URL", "http://localhost:3005")
	t.Setenv("RAILGUN_DEBUG", "1")
	t.Setenv("RAILGUN_LOG_LEVEL", "")
	t.Setenv("RAILGUN_CONNECT_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3005", cfg.ServerURL)
	require.True(t, cfg.Debug)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 2*time.Second, cfg.ConnectTimeout)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("RAILGUN_HOME_DIR", t.TempDir())
	t.Setenv("RAILGUN_CONNECT_TIMEOUT", "never")

	_, err := Load()
	require.Error(t, err)
}
