package logging

import (
	"context"
	"log/slog"

	"montage/internal/services"
)

const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldRunID identifies the pipeline run.
	FieldRunID = "run_id"
	// FieldTaskID identifies the durable stage task being executed.
	FieldTaskID = "task_id"
	// FieldStage is the pipeline stage (analyze, script, audio, render).
	FieldStage = "stage"
	// FieldLane is the worker lane.
	FieldLane = "lane"
	// FieldRequestID correlates retries of the same stage request.
	FieldRequestID = "request_id"
	// FieldSegmentID identifies a video segment within a run.
	FieldSegmentID = "segment_id"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

var contextFields = []struct {
	key    string
	lookup func(context.Context) (string, bool)
}{
	{FieldRunID, services.RunIDFromContext},
	{FieldTaskID, services.TaskIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldLane, services.LaneFromContext},
	{FieldRequestID, services.RequestIDFromContext},
	{FieldSegmentID, services.SegmentIDFromContext},
}

// ContextFields returns the identifiers stamped on ctx by the services helpers.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, f := range contextFields {
		if v, ok := f.lookup(ctx); ok {
			fields = append(fields, slog.String(f.key, v))
		}
	}
	return fields
}

// WithContext returns logger with the fields from ContextFields attached.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return logger.With(args...)
}
