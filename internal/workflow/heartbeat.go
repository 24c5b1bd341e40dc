package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"montage/internal/logging"
	"montage/internal/queue"
)

// HeartbeatMonitor manages task heartbeats and stale task reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	now               func() time.Time
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration, now func() time.Time) *HeartbeatMonitor {
	if now == nil {
		now = time.Now
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
		now:               now,
	}
}

// ReclaimStaleTasks returns running tasks that stopped heartbeating to pending.
func (h *HeartbeatMonitor) ReclaimStaleTasks(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := h.now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleTasks(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale tasks",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "tasks_reclaimed"),
		)
	}
	return nil
}

// StartLoop refreshes the task heartbeat until ctx is cancelled. When the
// store reports the lease lost, onLost is called once and the loop exits.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, taskID string, onLost func()) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.HeartbeatTask(ctx, taskID)
			switch {
			case err == nil:
				failures = 0
			case errors.Is(err, queue.ErrTaskLost):
				logging.WarnWithContext(logger, "task lease lost; abandoning stage", "heartbeat_lease_lost",
					logging.String(logging.FieldImpact, "another lane owns the task now"),
				)
				if onLost != nil {
					onLost()
				}
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				failures++
				logger.Warn("heartbeat update failed",
					logging.Error(err),
					logging.Int("consecutive_failures", failures),
				)
			}
		}
	}
}
