package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEvent names a player change event (trackChange, idleStart, ...).
	FieldEvent = "event"
	// FieldEventType classifies a log line for filtering (e.g. "poll_failed").
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDevice identifies a hardware device node or bus address.
	FieldDevice = "device"
	// FieldCommand is the player command being executed.
	FieldCommand = "command"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldSessionID is the standardized structured logging key for daemon run identifiers.
	FieldSessionID = "session_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey int

const (
	correlationKey contextKey = iota
	commandKey
)

// WithCorrelationID tags ctx so loggers derived through WithContext carry id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationKey, id)
}

// WithCommand tags ctx with the player command being handled.
func WithCommand(ctx context.Context, command string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, commandKey, command)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id, ok := ctx.Value(correlationKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String(FieldCorrelationID, id))
	}
	if cmd, ok := ctx.Value(commandKey).(string); ok && cmd != "" {
		attrs = append(attrs, slog.String(FieldCommand, cmd))
	}
	return attrs
}

// WithContext returns a logger enriched with fields carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := ContextFields(ctx)
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(attrs)...)
}
