package workflow

import (
	"context"
	"log/slog"

	"montage/internal/logging"
	"montage/internal/queue"
	"montage/internal/services"
)

func (m *Manager) laneLogger(lane string) *slog.Logger {
	return m.logger.With(
		logging.String(logging.FieldComponent, "workflow-"+lane),
		logging.String(logging.FieldLane, lane),
	)
}

func (m *Manager) taskLogger(ctx context.Context, lane string) *slog.Logger {
	return logging.WithContext(ctx, m.laneLogger(lane))
}

func withTaskContext(ctx context.Context, lane string, task *queue.Task) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if task == nil {
		return ctx
	}
	ctx = services.WithRunID(ctx, task.RunID)
	ctx = services.WithTaskID(ctx, task.ID)
	ctx = services.WithStage(ctx, string(task.Stage))
	if lane != "" {
		ctx = services.WithLane(ctx, lane)
	}
	if task.RequestID != "" {
		ctx = services.WithRequestID(ctx, task.RequestID)
	}
	return ctx
}
