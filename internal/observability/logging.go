// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// SetLogger replaces the global logger, e.g. with the context-aware one built
// by the middleware package.
func SetLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = &Logger{Logger: l}
	}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID tags every log line emitted for one UI action.
const CorrelationID LogContextKey = "correlation_id"

var gatewayLogging atomic.Bool

func init() {
	gatewayLogging.Store(true)
}

// EnableGatewayLogging toggles the per-call gateway logs.
func EnableGatewayLogging(on bool) {
	gatewayLogging.Store(on)
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// GatewayLogger logs calls made by one gateway backend.
type GatewayLogger struct {
	backend string
	logger  func() *Logger
}

// NewGatewayLogger creates a GatewayLogger for backend ("rest", "sql", "blob").
func NewGatewayLogger(backend string) *GatewayLogger {
	return &GatewayLogger{
		backend: backend,
		logger:  func() *Logger { return GlobalLogger },
	}
}

// LogCall logs a completed gateway call.
func (l *GatewayLogger) LogCall(ctx context.Context, op, table string, fields map[string]interface{}) {
	if !gatewayLogging.Load() {
		return
	}
	attrs := []any{
		slog.String("backend", l.backend),
		slog.String("operation", op),
		slog.String("table", table),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger().DebugContext(ctx, "gateway call", attrs...)
}

// LogError logs a failed gateway call. Errors are logged even when call
// logging is off.
func (l *GatewayLogger) LogError(ctx context.Context, err error, op, table string) {
	l.logger().ErrorContext(ctx, "gateway error",
		slog.String("backend", l.backend),
		slog.String("operation", op),
		slog.String("table", table),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}

// LogAsyncOperationStart logs the start of an asynchronous operation.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_start"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.DebugContext(ctx, "async operation started", attrs...)
}

// LogAsyncOperationEnd logs the completion of an asynchronous operation.
func LogAsyncOperationEnd(ctx context.Context, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_end"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.DebugContext(ctx, "async operation completed", attrs...)
}

// LogAsyncOperationError logs an error in an asynchronous operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
