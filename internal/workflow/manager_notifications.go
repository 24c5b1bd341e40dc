package workflow

import (
	"context"
	"errors"

	"montage/internal/logging"
	"montage/internal/notifications"
	"montage/internal/pipeline"
	"montage/internal/queue"
	"montage/internal/services"
)

func (m *Manager) notifyCompleted(ctx context.Context, run *queue.Run, state pipeline.CompletedState) {
	m.publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"title": run.Title,
		"url":   state.VideoURL,
	})
	if state.Degraded {
		m.publish(ctx, notifications.EventRunDegraded, notifications.Payload{
			"title":  run.Title,
			"detail": "one or more segments used a placeholder or uncorrected narration",
		})
	}
}

func (m *Manager) notifyFailed(ctx context.Context, run *queue.Run, stage queue.Stage, stageErr error) {
	m.publish(ctx, notifications.EventRunFailed, notifications.Payload{
		"title": run.Title,
		"stage": string(stage),
		"error": services.Summary(stageErr),
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		logger.Warn("notification failed",
			logging.Error(err),
			logging.String("event", string(event)),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldImpact, "operator will not be paged for this run"),
		)
	}
}
