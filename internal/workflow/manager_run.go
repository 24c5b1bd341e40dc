package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"montage/internal/logging"
)

const fetchErrorBackoff = 5 * time.Second

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	lanes := m.laneCount()
	m.wg.Add(lanes)
	m.mu.Unlock()

	for i := 1; i <= lanes; i++ {
		go m.runLane(runCtx, fmt.Sprintf("lane-%d", i))
	}
	return nil
}

// Stop terminates background processing and waits for in-flight tasks.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLane(ctx context.Context, lane string) {
	defer m.wg.Done()
	logger := m.laneLogger(lane)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleTasks(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("reclaim stale tasks failed; stuck tasks may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}

		processed, err := m.ProcessNext(ctx, lane)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleFetchError(ctx, logger, err)
			continue
		}
		if !processed {
			m.waitForTaskOrShutdown(ctx)
		}
	}
}

// ProcessNext claims and executes at most one due task on the named lane. It
// reports whether a task was claimed.
func (m *Manager) ProcessNext(ctx context.Context, lane string) (bool, error) {
	task, err := m.store.ClaimTask(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	if err := m.processTask(ctx, lane, task); err != nil {
		m.setLastError(err)
		if errors.Is(err, context.Canceled) {
			return true, err
		}
		m.laneLogger(lane).Error("task bookkeeping failed",
			logging.Error(err),
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldRunID, task.RunID),
			logging.String(logging.FieldEventType, "task_bookkeeping_failed"),
			logging.String(logging.FieldErrorHint, "the task will be reclaimed after the heartbeat timeout"),
		)
	}
	return true, nil
}

// Drain processes due tasks on the calling goroutine until none remain. Tasks
// scheduled in the future are left for the lanes.
func (m *Manager) Drain(ctx context.Context) (int, error) {
	count := 0
	for {
		processed, err := m.ProcessNext(ctx, "drain")
		if err != nil {
			return count, err
		}
		if !processed {
			return count, nil
		}
		count++
	}
}

func (m *Manager) handleFetchError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next stage task",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(fetchErrorBackoff):
	}
}

func (m *Manager) waitForTaskOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

