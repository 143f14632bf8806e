package incconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHostConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadHostConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHostConfig(), cfg)
}

func TestSaveThenLoadHostConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultHostConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.Metrics.Listen = ":9999"
	cfg.ServerConfigPath = "/etc/incd/incd.conf"

	require.NoError(t, SaveHostConfig(cfg, path))

	loaded, err := LoadHostConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWatchHostConfigFiresOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultHostConfig()
	require.NoError(t, SaveHostConfig(cfg, path))

	changed := make(chan *HostConfig, 1)
	stop, err := WatchHostConfig(path, func(c *HostConfig) {
		select {
		case changed <- c:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	cfg.Logging.Level = "ERROR"
	require.NoError(t, SaveHostConfig(cfg, path))

	select {
	case got := <-changed:
		assert.Equal(t, "ERROR", got.Logging.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchHostConfig did not fire within timeout")
	}
}

func TestDefaultHostConfigDirRespectsXDG(t *testing.T) {
	old := os.Getenv("XDG_CONFIG_HOME")
	defer os.Setenv("XDG_CONFIG_HOME", old)

	os.Setenv("XDG_CONFIG_HOME", "/tmp/xdgtest")
	assert.Equal(t, "/tmp/xdgtest/incd", defaultHostConfigDir())
}
