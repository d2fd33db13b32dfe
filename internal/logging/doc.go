// Package logging wraps zap with context-aware methods. Correlation
// fields (trace ids, request ids) attached to a context.Context are
// stamped onto every entry logged with that context. An optional
// OpenTelemetry bridge mirrors entries to an OTEL log provider.
package logging
