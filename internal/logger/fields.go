package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so connection and
// message events line up under log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Connection & Transport
	// ========================================================================
	KeyConnectionID = "connection_id" // Connection identifier
	KeyRole         = "role"          // Connection role: client, server
	KeyRemoteAddr   = "remote_addr"   // Peer address, where the transport has one
	KeyTransport    = "transport"     // Transport kind: tcp, unix, shm
	KeyBytesRead    = "bytes_read"    // Bytes consumed from the transport
	KeyBytesWritten = "bytes_written" // Bytes flushed to the transport

	// ========================================================================
	// Message Framing
	// ========================================================================
	KeyMessageType      = "message_type"      // incmsg.Type name: HANDSHAKE, METHOD_CALL, EVENT, ...
	KeyChannelID        = "channel_id"        // Multiplexing channel identifier
	KeySequenceNumber   = "sequence_number"   // Per-connection monotonic sequence number
	KeyPayloadLength    = "payload_length"    // Declared payload length from the header
	KeyProtocolVersion  = "protocol_version"  // Header protocol version field
	KeyPayloadVersion   = "payload_version"   // Header payload (TagStruct) version field
	KeyFlags            = "flags"             // Header flag bits, formatted as hex

	// ========================================================================
	// Handshake & Negotiation
	// ========================================================================
	KeyClientVersion     = "client_version"     // Version advertised by the connecting peer
	KeyNegotiatedVersion = "negotiated_version" // Version both sides agreed to use
	KeyVersionPolicy     = "version_policy"     // Strict, Compatible, or Permissive

	// ========================================================================
	// Operations (request/response tracking)
	// ========================================================================
	KeyOperationState = "operation_state" // Queued, InFlight, Completed, Failed, Cancelled
	KeyPendingCount   = "pending_count"   // Size of the pending-operations table

	// ========================================================================
	// Shared Memory
	// ========================================================================
	KeySHMID        = "shm_id"         // Shared memory block identifier
	KeySHMOffset    = "shm_offset"     // Offset within a shared memory block
	KeySHMLength    = "shm_length"     // Length of the referenced region
	KeySHMBlocksNew = "shm_blocks_new" // Live SHM block count after the recorded change

	// ========================================================================
	// Publish/Subscribe
	// ========================================================================
	KeyTopic           = "topic"            // Subscription topic name
	KeySubscriberCount = "subscriber_count" // Number of subscribers on a topic

	// ========================================================================
	// Errors & Diagnostics
	// ========================================================================
	KeyErrorKind  = "error_kind"  // increrr.Kind name: bad_magic, too_large, bad_shm_ref, ...
	KeyError      = "error"       // Error message
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds

	// ========================================================================
	// Host Bootstrap
	// ========================================================================
	KeyConfigPath = "config_path" // Path to a loaded configuration file
	KeyListenAddr = "listen_addr" // Address the server is bound to
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ConnectionID returns a slog.Attr for connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// Role returns a slog.Attr for connection role (client, server)
func Role(role string) slog.Attr {
	return slog.String(KeyRole, role)
}

// RemoteAddr returns a slog.Attr for the peer address
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// Transport returns a slog.Attr for transport kind
func Transport(kind string) slog.Attr {
	return slog.String(KeyTransport, kind)
}

// BytesRead returns a slog.Attr for bytes consumed from the transport
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for bytes flushed to the transport
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// MessageType returns a slog.Attr for a message type name
func MessageType(t string) slog.Attr {
	return slog.String(KeyMessageType, t)
}

// ChannelID returns a slog.Attr for a multiplexing channel identifier
func ChannelID(id uint16) slog.Attr {
	return slog.Any(KeyChannelID, id)
}

// SequenceNumber returns a slog.Attr for a message sequence number
func SequenceNumber(seq uint32) slog.Attr {
	return slog.Any(KeySequenceNumber, seq)
}

// PayloadLength returns a slog.Attr for a declared payload length
func PayloadLength(n uint32) slog.Attr {
	return slog.Any(KeyPayloadLength, n)
}

// ProtocolVersion returns a slog.Attr for the header protocol version
func ProtocolVersion(v uint16) slog.Attr {
	return slog.Any(KeyProtocolVersion, v)
}

// PayloadVersion returns a slog.Attr for the header payload version
func PayloadVersion(v uint16) slog.Attr {
	return slog.Any(KeyPayloadVersion, v)
}

// Flags returns a slog.Attr for header flag bits, formatted as hex
func Flags(f uint16) slog.Attr {
	return slog.String(KeyFlags, fmt.Sprintf("0x%04x", f))
}

// ClientVersion returns a slog.Attr for the version a peer advertised
func ClientVersion(v uint16) slog.Attr {
	return slog.Any(KeyClientVersion, v)
}

// NegotiatedVersion returns a slog.Attr for the version both sides agreed to
func NegotiatedVersion(v uint16) slog.Attr {
	return slog.Any(KeyNegotiatedVersion, v)
}

// VersionPolicy returns a slog.Attr for the negotiation policy name
func VersionPolicy(policy string) slog.Attr {
	return slog.String(KeyVersionPolicy, policy)
}

// OperationState returns a slog.Attr for an operation's lifecycle state
func OperationState(state string) slog.Attr {
	return slog.String(KeyOperationState, state)
}

// PendingCount returns a slog.Attr for the pending-operations table size
func PendingCount(n int) slog.Attr {
	return slog.Int(KeyPendingCount, n)
}

// SHMID returns a slog.Attr for a shared memory block identifier
func SHMID(id string) slog.Attr {
	return slog.String(KeySHMID, id)
}

// SHMOffset returns a slog.Attr for an offset within a shared memory block
func SHMOffset(off uint64) slog.Attr {
	return slog.Uint64(KeySHMOffset, off)
}

// SHMLength returns a slog.Attr for the length of a referenced SHM region
func SHMLength(n uint64) slog.Attr {
	return slog.Uint64(KeySHMLength, n)
}

// SHMBlocksLive returns a slog.Attr for the live SHM block count
func SHMBlocksLive(n int) slog.Attr {
	return slog.Int(KeySHMBlocksNew, n)
}

// Topic returns a slog.Attr for a subscription topic name
func Topic(name string) slog.Attr {
	return slog.String(KeyTopic, name)
}

// SubscriberCount returns a slog.Attr for the number of subscribers on a topic
func SubscriberCount(n int) slog.Attr {
	return slog.Int(KeySubscriberCount, n)
}

// ErrorKind returns a slog.Attr for an increrr.Kind name
func ErrorKind(kind string) slog.Attr {
	return slog.String(KeyErrorKind, kind)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// ConfigPath returns a slog.Attr for a loaded configuration file path
func ConfigPath(path string) slog.Attr {
	return slog.String(KeyConfigPath, path)
}

// ListenAddr returns a slog.Attr for the server's bind address
func ListenAddr(addr string) slog.Attr {
	return slog.String(KeyListenAddr, addr)
}
