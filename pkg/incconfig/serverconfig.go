// Package incconfig loads the two configuration surfaces the host binary
// needs: ServerConfig, the protocol's own key=value wire-format record
// (listen address, version/encryption policy, resource caps), and
// HostConfig, the demo binary's own YAML-backed bootstrap settings
// (logging, metrics, and where to find the ServerConfig file).
package incconfig

import (
	"fmt"
	"time"
)

// VersionPolicy controls how a server-role Connection reacts to a peer's
// advertised protocol version during handshake.
type VersionPolicy int

const (
	// VersionStrict accepts only protocolVersion == Current.
	VersionStrict VersionPolicy = iota
	// VersionCompatible accepts any version in [Min, Max], negotiating to
	// min(client, Current).
	VersionCompatible
	// VersionPermissive accepts any version at all, negotiating to
	// min(client, Current).
	VersionPermissive
)

func (p VersionPolicy) String() string {
	switch p {
	case VersionStrict:
		return "Strict"
	case VersionCompatible:
		return "Compatible"
	case VersionPermissive:
		return "Permissive"
	default:
		return "Unknown"
	}
}

// ParseVersionPolicy parses one of the three literal policy names used by
// both the config-file grammar and Dump's output.
func ParseVersionPolicy(s string) (VersionPolicy, error) {
	switch s {
	case "Strict":
		return VersionStrict, nil
	case "Compatible":
		return VersionCompatible, nil
	case "Permissive":
		return VersionPermissive, nil
	default:
		return 0, fmt.Errorf("incconfig: unknown version policy %q", s)
	}
}

// EncryptionRequirement controls whether a connection may, should, or must
// negotiate transport encryption. The protocol module does not itself
// implement encryption (§4.8 notes this is "policy only"); the field exists
// so a host's transport adapter can consult it.
type EncryptionRequirement int

const (
	// EncryptionOptional accepts both plaintext and encrypted connections.
	EncryptionOptional EncryptionRequirement = iota
	// EncryptionPreferred offers encryption but falls back to plaintext.
	EncryptionPreferred
	// EncryptionRequired drops any connection that is still plaintext
	// after the handshake completes.
	EncryptionRequired
)

func (e EncryptionRequirement) String() string {
	switch e {
	case EncryptionOptional:
		return "Optional"
	case EncryptionPreferred:
		return "Preferred"
	case EncryptionRequired:
		return "Required"
	default:
		return "Unknown"
	}
}

// ParseEncryptionRequirement parses one of the three literal requirement
// names used by both the config-file grammar and Dump's output.
func ParseEncryptionRequirement(s string) (EncryptionRequirement, error) {
	switch s {
	case "Optional":
		return EncryptionOptional, nil
	case "Preferred":
		return EncryptionPreferred, nil
	case "Required":
		return EncryptionRequired, nil
	default:
		return 0, fmt.Errorf("incconfig: unknown encryption requirement %q", s)
	}
}

// ServerConfig is the protocol-side policy object consulted at connection
// setup: version policy, resource caps, and encryption requirement. Field
// names mirror spec.md's §3 table; LoadServerConfig reads it from the
// line-oriented key=value grammar of §6, and Dump renders it as a
// labelled human-readable block.
type ServerConfig struct {
	ListenAddress string

	SystemInstance bool

	VersionPolicy          VersionPolicy
	ProtocolVersionCurrent uint16
	ProtocolVersionMin     uint16
	ProtocolVersionMax     uint16

	MaxConnections          int
	MaxConnectionsPerClient int

	SharedMemorySize    uint64
	DisableSharedMemory bool
	DisableMemfd        bool

	MaxMessageSize uint32

	EncryptionRequirement EncryptionRequirement
	CertificatePath       string
	PrivateKeyPath        string

	ClientTimeout time.Duration
	ExitIdleTime  time.Duration

	HighPriority bool
	NiceLevel    int
}

// DefaultServerConfig returns a ServerConfig with conservative defaults:
// permissive version negotiation off (Compatible), SHM enabled, a 64MB
// message cap, and encryption optional — a new deployment can tighten any
// of these without the protocol module itself taking a position on policy.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddress:           "unix:/run/incd/incd.sock",
		SystemInstance:          false,
		VersionPolicy:           VersionCompatible,
		ProtocolVersionCurrent:  1,
		ProtocolVersionMin:      1,
		ProtocolVersionMax:      1,
		MaxConnections:          1024,
		MaxConnectionsPerClient: 64,
		SharedMemorySize:        64 * 1024 * 1024,
		DisableSharedMemory:     false,
		DisableMemfd:            false,
		MaxMessageSize:          64 * 1024 * 1024,
		EncryptionRequirement:   EncryptionOptional,
		ClientTimeout:           30 * time.Second,
		ExitIdleTime:            5 * time.Minute,
		HighPriority:            false,
		NiceLevel:               0,
	}
}

// Dump renders a single human-readable block of every effective option, in
// the same field order and label text as the original implementation's
// iINCServerConfig::dump(), for debugging and `incd config dump`.
func (c *ServerConfig) Dump() string {
	return fmt.Sprintf(
		"=== INC Server Configuration ===\n"+
			"Listen Address: %s\n"+
			"System Instance: %t\n"+
			"Version Policy: %s\n"+
			"Protocol Version: %d (range: %d-%d)\n"+
			"Max Connections: %d\n"+
			"Max Connections Per Client: %d\n"+
			"Disable SHM: %t\n"+
			"Disable Memfd: %t\n"+
			"SHM Size: %d bytes\n"+
			"Max Message Size: %d bytes\n"+
			"Encryption Requirement: %s\n"+
			"Certificate Path: %s\n"+
			"Private Key Path: %s\n"+
			"Client Timeout: %d ms\n"+
			"Exit Idle Time: %d ms\n"+
			"High Priority: %t\n"+
			"Nice Level: %d\n",
		c.ListenAddress,
		c.SystemInstance,
		c.VersionPolicy,
		c.ProtocolVersionCurrent, c.ProtocolVersionMin, c.ProtocolVersionMax,
		c.MaxConnections,
		c.MaxConnectionsPerClient,
		c.DisableSharedMemory,
		c.DisableMemfd,
		c.SharedMemorySize,
		c.MaxMessageSize,
		c.EncryptionRequirement,
		c.CertificatePath,
		c.PrivateKeyPath,
		c.ClientTimeout.Milliseconds(),
		c.ExitIdleTime.Milliseconds(),
		c.HighPriority,
		c.NiceLevel,
	)
}

// Negotiate applies VersionPolicy to a client's advertised protocolVersion,
// per spec.md §4.8: Strict accepts only an exact match; Compatible accepts
// anything in [Min, Max]; Permissive accepts any version. An accepted
// negotiation always settles on min(clientVersion, Current).
func (c *ServerConfig) Negotiate(clientVersion uint16) (negotiated uint16, accept bool) {
	switch c.VersionPolicy {
	case VersionStrict:
		if clientVersion != c.ProtocolVersionCurrent {
			return 0, false
		}
		return c.ProtocolVersionCurrent, true
	case VersionCompatible:
		if clientVersion < c.ProtocolVersionMin || clientVersion > c.ProtocolVersionMax {
			return 0, false
		}
		return minVersion(clientVersion, c.ProtocolVersionCurrent), true
	case VersionPermissive:
		return minVersion(clientVersion, c.ProtocolVersionCurrent), true
	default:
		return 0, false
	}
}

func minVersion(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}
