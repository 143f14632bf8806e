package incconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// HostConfig is the demo host binary's own YAML-backed bootstrap config:
// how to log, where to publish metrics, and where to find the ServerConfig
// file this module actually governs the wire protocol with. It is
// intentionally a separate type from ServerConfig (see SPEC_FULL.md §3):
// §6's key=value grammar is a protocol invariant, while HostConfig is
// ordinary developer-ergonomics configuration, so it is free to use viper
// the way the teacher's own host config does.
type HostConfig struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ServerConfigPath points at the key=value ServerConfig file LoadServerConfig
	// reads; HostConfig itself never duplicates ServerConfig's fields.
	ServerConfigPath string `mapstructure:"server_config_path" yaml:"server_config_path"`
}

// LoggingConfig controls the host binary's log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the host binary's Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// DefaultHostConfig returns a HostConfig with the same sensible-default
// philosophy as DefaultServerConfig.
func DefaultHostConfig() *HostConfig {
	return &HostConfig{
		Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		Metrics: MetricsConfig{Enabled: true, Listen: ":9090"},
	}
}

// LoadHostConfig starts from DefaultHostConfig and overlays the values the
// config file sets; an INCD_* environment variable overrides a key the file
// sets, while environment variables for keys the file does not set are not
// read. A missing file yields the defaults — mirroring the teacher's own
// pkg/config.Load.
func LoadHostConfig(configPath string) (*HostConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("INCD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultHostConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	cfg := DefaultHostConfig()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("incconfig: reading host config: %w", err)
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("incconfig: unmarshal host config: %w", err)
	}

	return cfg, nil
}

// SaveHostConfig writes cfg to path in YAML form.
func SaveHostConfig(cfg *HostConfig, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("incconfig: creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("incconfig: marshal host config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("incconfig: writing host config: %w", err)
	}
	return nil
}

func defaultHostConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "incd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "incd")
}

// WatchHostConfig watches path for writes and invokes onChange with the
// freshly reloaded HostConfig each time, mirroring the teacher's
// fsnotify-based config-reload use (cmd/dittofs/commands/logs.go) adapted
// from log-file tailing to config-file hot reload. The returned stop
// function closes the underlying watcher; callers should defer it.
func WatchHostConfig(path string, onChange func(*HostConfig)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("incconfig: creating config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("incconfig: watching %s: %w", path, err)
	}

	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(100*time.Millisecond, func() {
					cfg, err := LoadHostConfig(path)
					if err != nil {
						return
					}
					onChange(cfg)
				})
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
