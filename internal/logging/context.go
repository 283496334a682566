package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldBusinessKey identifies the bid record a log line is about.
	FieldBusinessKey = "business_key"
	// FieldItemID is the work store surrogate key.
	FieldItemID = "item_id"
	// FieldWorkerID is the claiming worker's identity.
	FieldWorkerID = "worker_id"
	// FieldState is the worker state machine state.
	FieldState = "state"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
)

type contextKey int

const (
	businessKeyKey contextKey = iota
	workerIDKey
)

// WithBusinessKey tags ctx with the business key being processed.
func WithBusinessKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, businessKeyKey, key)
}

// WithWorkerID tags ctx with the worker identity.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(workerIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldWorkerID, id))
	}
	if key, ok := ctx.Value(businessKeyKey).(string); ok && key != "" {
		fields = append(fields, slog.String(FieldBusinessKey, key))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
