package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across sprout.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldSessionID = "session_id"
	FieldUserID    = "user_id"
	FieldEntryID   = "entry_id"
	FieldClientID  = "client_id"

	// Components
	FieldComponent = "component"

	// Requests
	FieldMethod = "method"
	FieldURL    = "url"
	FieldPath   = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldWindowMS   = "window_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount     = "count"
	FieldSize      = "size"
	FieldBatchSize = "batch_size"
	FieldPending   = "pending"
	FieldLocked    = "locked"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Graph stream
	FieldEvent     = "event"
	FieldNodeID    = "node_id"
	FieldSourceID  = "source_id"
	FieldTargetID  = "target_id"
	FieldPartition = "partition"
	FieldAgent     = "agent"
	FieldTool      = "tool"
)

// Context keys for propagating logging context
type contextKey string

const (
	sessionIDKey contextKey = "logger_session_id"
	userIDKey    contextKey = "logger_user_id"
	componentKey contextKey = "logger_component"
)

// WithSessionID adds a session ID to the context for logging
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithUserID adds a user ID to the context for logging
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok && sessionID != "" {
		fields = append(fields, FieldSessionID, sessionID)
	}
	if userID, ok := ctx.Value(userIDKey).(string); ok && userID != "" {
		fields = append(fields, FieldUserID, userID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Buffer struct {
//	    log *zap.SugaredLogger
//	}
//
//	func New() *Buffer {
//	    return &Buffer{
//	        log: logger.ComponentLogger("batch"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
