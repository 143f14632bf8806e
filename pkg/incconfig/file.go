package incconfig

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/incd/internal/logger"
)

// LoadServerConfig reads a ServerConfig from the line-oriented key=value
// file grammar of spec.md §6: '#' starts a comment, blank lines are
// ignored, and each remaining line is "key = value". Recognized keys are
// the names in ServerConfig's field table; an unrecognized key produces a
// warning log line and is otherwise ignored, exactly as spec.md §6
// requires. A line without '=' or a value that does not parse for its key
// fails the whole load.
//
// This intentionally does not use viper: §6 defines the grammar itself as
// a wire-format invariant the protocol must parse exactly as documented,
// not as a developer-ergonomics config format subject to viper's own
// format-sniffing and environment-variable overlay.
func LoadServerConfig(path string) (*ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("incconfig: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := DefaultServerConfig()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("incconfig: %s:%d: malformed line %q (expected key = value)", path, lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if err := applyKey(cfg, key, value); err != nil {
			if _, unknown := err.(*unknownKeyError); unknown {
				logger.Warn("ignoring unknown incconfig key", "file", path, "line", lineNo, "key", key)
				continue
			}
			return nil, fmt.Errorf("incconfig: %s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("incconfig: reading %s: %w", path, err)
	}

	return cfg, nil
}

type unknownKeyError struct{ key string }

func (e *unknownKeyError) Error() string { return fmt.Sprintf("unknown key %q", e.key) }

func applyKey(cfg *ServerConfig, key, value string) error {
	switch key {
	case "listen_address":
		cfg.ListenAddress = value
	case "system_instance":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("system_instance: %w", err)
		}
		cfg.SystemInstance = b
	case "version_policy":
		p, err := ParseVersionPolicy(value)
		if err != nil {
			return err
		}
		cfg.VersionPolicy = p
	case "protocol_version_current":
		v, err := parseUint16(value)
		if err != nil {
			return fmt.Errorf("protocol_version_current: %w", err)
		}
		cfg.ProtocolVersionCurrent = v
	case "protocol_version_min":
		v, err := parseUint16(value)
		if err != nil {
			return fmt.Errorf("protocol_version_min: %w", err)
		}
		cfg.ProtocolVersionMin = v
	case "protocol_version_max":
		v, err := parseUint16(value)
		if err != nil {
			return fmt.Errorf("protocol_version_max: %w", err)
		}
		cfg.ProtocolVersionMax = v
	case "max_connections":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_connections: %w", err)
		}
		cfg.MaxConnections = v
	case "max_connections_per_client":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_connections_per_client: %w", err)
		}
		cfg.MaxConnectionsPerClient = v
	case "shared_memory_size":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("shared_memory_size: %w", err)
		}
		cfg.SharedMemorySize = v
	case "disable_shared_memory":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("disable_shared_memory: %w", err)
		}
		cfg.DisableSharedMemory = b
	case "disable_memfd":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("disable_memfd: %w", err)
		}
		cfg.DisableMemfd = b
	case "max_message_size":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("max_message_size: %w", err)
		}
		cfg.MaxMessageSize = uint32(v)
	case "encryption_requirement":
		e, err := ParseEncryptionRequirement(value)
		if err != nil {
			return err
		}
		cfg.EncryptionRequirement = e
	case "certificate_path":
		cfg.CertificatePath = value
	case "private_key_path":
		cfg.PrivateKeyPath = value
	case "client_timeout_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("client_timeout_ms: %w", err)
		}
		cfg.ClientTimeout = time.Duration(v) * time.Millisecond
	case "exit_idle_time_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("exit_idle_time_ms: %w", err)
		}
		cfg.ExitIdleTime = time.Duration(v) * time.Millisecond
	case "high_priority":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("high_priority: %w", err)
		}
		cfg.HighPriority = b
	case "nice_level":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("nice_level: %w", err)
		}
		cfg.NiceLevel = v
	default:
		return &unknownKeyError{key: key}
	}
	return nil
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
