package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context. The connection engine
// creates one per accepted connection and narrows it per query, so every log
// line carries enough to correlate a query with its connection.
type LogContext struct {
	ConnectionID uint64    // Server-assigned connection number
	RemoteAddr   string    // Peer address including port
	Role         string    // game, login or web once authorized
	World        string    // World name for game connections
	Query        string    // Query name while one is being processed
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

// NewLogContext creates a new LogContext for an accepted connection
func NewLogContext(connectionID uint64, remoteAddr string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		RemoteAddr:   remoteAddr,
		StartTime:    time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithRole returns a copy with the role and world set
func (lc *LogContext) WithRole(role, world string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Role = role
		clone.World = world
	}
	return clone
}

// WithQuery returns a copy scoped to one query, restarting the clock
func (lc *LogContext) WithQuery(query string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Query = query
		clone.StartTime = time.Now()
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
