package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	runIDKey contextKey = iota
	tableKey
)

// WithRunID stores the run ID in ctx and returns logger tagged with it
func WithRunID(ctx context.Context, logger *zap.Logger, runID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, runIDKey, runID), logger.With(zap.String("run_id", runID))
}

// WithTable stores the output table in ctx and returns logger tagged with it
func WithTable(ctx context.Context, logger *zap.Logger, table string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, tableKey, table), logger.With(zap.String("table", table))
}

// GetRunID returns the run ID stored in ctx, or ""
func GetRunID(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}

// GetTable returns the output table stored in ctx, or ""
func GetTable(ctx context.Context) string {
	table, _ := ctx.Value(tableKey).(string)
	return table
}

// GetTraceID returns the trace ID of the active span, or ""
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// ForContext tags logger with the trace and span IDs of the active span so
// that log lines can be joined with traces.
//
//	logger.ForContext(ctx, log).Info("Partition written", zap.Int64("partition", id))
func ForContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
