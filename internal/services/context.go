package services

import "context"

// contextKey values are unexported so only this package can set them.
type contextKey int

const (
	runIDKey contextKey = iota
	taskIDKey
	stageKey
	laneKey
	requestIDKey
	segmentKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithRunID annotates ctx with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context { return withString(ctx, runIDKey, id) }

// RunIDFromContext returns the run identifier stamped by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) { return stringValue(ctx, runIDKey) }

// WithTaskID annotates ctx with the stage task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withString(ctx, taskIDKey, id)
}

func TaskIDFromContext(ctx context.Context) (string, bool) { return stringValue(ctx, taskIDKey) }

// WithStage records which pipeline stage (analyze, script, audio, render) is executing.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return stringValue(ctx, stageKey) }

// WithLane records the worker lane that claimed the task.
func WithLane(ctx context.Context, lane string) context.Context {
	return withString(ctx, laneKey, lane)
}

func LaneFromContext(ctx context.Context) (string, bool) { return stringValue(ctx, laneKey) }

// WithRequestID carries the correlation id shared by every attempt of a stage.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithSegmentID names the media segment being reconciled or synthesized.
func WithSegmentID(ctx context.Context, id string) context.Context {
	return withString(ctx, segmentKey, id)
}

func SegmentIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, segmentKey)
}
