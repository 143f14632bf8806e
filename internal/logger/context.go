package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context: the fields every log
// line for a given INC connection should carry, so they don't have to be
// repeated at every call site.
type LogContext struct {
	TraceID      string    // OpenTelemetry trace ID
	SpanID       string    // OpenTelemetry span ID
	ConnectionID string    // Connection identifier
	Role         string    // Connection role: client, server
	RemoteAddr   string    // Peer address, where the transport has one
	ChannelID    uint16    // Active multiplexing channel, if any
	StartTime    time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a connection identified by id.
func NewLogContext(connectionID string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		StartTime:    time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:      lc.TraceID,
		SpanID:       lc.SpanID,
		ConnectionID: lc.ConnectionID,
		Role:         lc.Role,
		RemoteAddr:   lc.RemoteAddr,
		ChannelID:    lc.ChannelID,
		StartTime:    lc.StartTime,
	}
}

// WithRole returns a copy with the connection role set
func (lc *LogContext) WithRole(role string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Role = role
	}
	return clone
}

// WithRemoteAddr returns a copy with the peer address set
func (lc *LogContext) WithRemoteAddr(addr string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.RemoteAddr = addr
	}
	return clone
}

// WithChannel returns a copy with the active channel set
func (lc *LogContext) WithChannel(channelID uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ChannelID = channelID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
