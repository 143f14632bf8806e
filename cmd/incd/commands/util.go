package commands

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/incd/internal/logger"
	"github.com/marmos91/incd/pkg/incconfig"
)

// InitLogger initializes the structured logger from the host's logging
// configuration.
func InitLogger(cfg *incconfig.HostConfig) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// listen opens a net.Listener for a ServerConfig.ListenAddress of the form
// "unix:<path>" or "tcp:<host:port>", the two transports spec.md §3's
// Transport abstraction is expected to run over.
func listen(address string) (net.Listener, error) {
	network, addr, ok := strings.Cut(address, ":")
	if !ok {
		return nil, fmt.Errorf("listen address %q: expected \"unix:<path>\" or \"tcp:<host:port>\"", address)
	}

	switch network {
	case "unix":
		if err := os.MkdirAll(filepath.Dir(addr), 0755); err != nil {
			return nil, fmt.Errorf("creating socket directory: %w", err)
		}
		_ = os.Remove(addr)
		return net.Listen("unix", addr)
	case "tcp":
		return net.Listen("tcp", addr)
	default:
		return nil, fmt.Errorf("listen address %q: unsupported scheme %q", address, network)
	}
}

// getDefaultStateDir returns the default state directory path, mirroring
// the teacher's own XDG-aware layout.
func getDefaultStateDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "incd")
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "incd")
}
