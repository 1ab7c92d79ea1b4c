package logging

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// The correlation agentd carries in context: which supervised component is
// doing the work, which scheduled run (hand or cron) it belongs to, where
// the triggering message came from, and which MCP request is in flight.

type componentCtxKey struct{}
type runCtxKey struct{}
type originCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// Origin identifies where a message entered the daemon: the channel
// adapter and the sender on that channel. It mirrors the executor's
// tool-call "_context" member.
type Origin struct {
	Channel  string
	SenderID string
}

// maxFieldLen bounds correlation values so a hostile sender id cannot
// bloat every log line.
const maxFieldLen = 128

// clean truncates and drops non-UTF-8 correlation values rather than
// rejecting them; correlation is best-effort, never a reason to fail.
func clean(s string) string {
	if !utf8.ValidString(s) {
		return ""
	}
	if len(s) > maxFieldLen {
		return s[:maxFieldLen]
	}
	return s
}

// WithComponent marks ctx as belonging to a supervised component ("cron",
// "hands", "mcp-stdio", ...).
func WithComponent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, componentCtxKey{}, clean(name))
}

// ComponentFromContext returns the component name, or "".
func ComponentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(componentCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRunID tags ctx with a scheduled-run id (one Hand execution or one
// cron dispatch).
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, clean(runID))
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithOrigin records the channel and sender a message arrived from.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	origin.Channel = clean(origin.Channel)
	origin.SenderID = clean(origin.SenderID)
	return context.WithValue(ctx, originCtxKey{}, origin)
}

// OriginFromContext returns the message origin, if any.
func OriginFromContext(ctx context.Context) (Origin, bool) {
	v, ok := ctx.Value(originCtxKey{}).(Origin)
	return v, ok
}

// WithRequestID tags ctx with an MCP JSON-RPC request id or an HTTP
// request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, clean(requestID))
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts every correlation field present in ctx, OTEL
// trace ids first.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if component := ComponentFromContext(ctx); component != "" {
		fields = append(fields, zap.String("component", component))
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if origin, ok := OriginFromContext(ctx); ok {
		if origin.Channel != "" {
			fields = append(fields, zap.String("origin.channel", origin.Channel))
		}
		if origin.SenderID != "" {
			fields = append(fields, zap.String("origin.sender", origin.SenderID))
		}
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// WithLogger stores a logger in ctx for call paths that cannot thread one
// explicitly.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the stored logger, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop()}
}
