package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Stage outcomes reported by the workflow manager.
const (
	OutcomeDone      = "done"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// Recorder reports stage executions.
type Recorder struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	attempts metric.Int64Counter
	outcomes metric.Int64Counter
	segments metric.Int64Counter
}

// NewRecorder builds a recorder on the global providers.
func NewRecorder() *Recorder {
	return NewRecorderWith(Meter("montage/workflow"), Tracer("montage/workflow"))
}

// NewRecorderWith builds a recorder on explicit providers. Instrument creation
// errors leave that instrument disabled.
func NewRecorderWith(meter metric.Meter, tracer trace.Tracer) *Recorder {
	duration, _ := meter.Float64Histogram("montage.stage.duration",
		metric.WithDescription("Time spent executing a pipeline stage (ms)"),
		metric.WithUnit("ms"),
	)
	attempts, _ := meter.Int64Counter("montage.stage.attempts",
		metric.WithDescription("Stage executions started"),
	)
	outcomes, _ := meter.Int64Counter("montage.stage.outcomes",
		metric.WithDescription("Stage executions by outcome"),
	)
	segments, _ := meter.Int64Counter("montage.segments.degraded",
		metric.WithDescription("Reconciled segments that needed a fallback"),
	)
	return &Recorder{
		tracer:   tracer,
		duration: duration,
		attempts: attempts,
		outcomes: outcomes,
		segments: segments,
	}
}

// StageSpan tracks one stage execution.
type StageSpan struct {
	rec   *Recorder
	span  trace.Span
	start time.Time
	attrs []attribute.KeyValue
}

// StartStage opens a span for a stage execution and counts the attempt.
func (r *Recorder) StartStage(ctx context.Context, runID, stage string, attempt int) (context.Context, *StageSpan) {
	attrs := []attribute.KeyValue{
		attribute.String("montage.stage", stage),
	}
	if r == nil {
		return ctx, &StageSpan{attrs: attrs, start: time.Now()}
	}
	ctx, span := r.tracer.Start(ctx, "stage "+stage,
		trace.WithAttributes(
			attribute.String("montage.run_id", runID),
			attribute.String("montage.stage", stage),
			attribute.Int("montage.attempt", attempt),
		),
	)
	if r.attempts != nil {
		r.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return ctx, &StageSpan{rec: r, span: span, start: time.Now(), attrs: attrs}
}

// End records the outcome and closes the span.
func (s *StageSpan) End(ctx context.Context, outcome string, err error) {
	if s == nil || s.rec == nil {
		return
	}
	attrs := append(append([]attribute.KeyValue(nil), s.attrs...), attribute.String("montage.outcome", outcome))
	if s.rec.duration != nil {
		s.rec.duration.Record(ctx, float64(time.Since(s.start).Milliseconds()), metric.WithAttributes(attrs...))
	}
	if s.rec.outcomes != nil {
		s.rec.outcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	s.span.SetAttributes(attribute.String("montage.outcome", outcome))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// DegradedSegments counts reconciled segments that fell back to placeholders
// or uncorrected audio.
func (r *Recorder) DegradedSegments(ctx context.Context, count int) {
	if r == nil || r.segments == nil || count <= 0 {
		return
	}
	r.segments.Add(ctx, int64(count))
}
