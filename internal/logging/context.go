// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	if chatID := ChatIDFromContext(ctx); chatID != "" {
		fields = append(fields, zap.String("chat.id", chatID))
	}

	return fields
}

// Context key types
type requestCtxKey struct{}
type chatCtxKey struct{}
type loggerCtxKey struct{}

// RequestIDFromContext extracts the curation request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds a curation request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// ChatIDFromContext extracts the chat ID from context.
func ChatIDFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(chatCtxKey{}).(string); ok {
		return c
	}
	return ""
}

// WithChatID adds a chat ID to context.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatCtxKey{}, chatID)
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
