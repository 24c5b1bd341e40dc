package workflow

import (
	"context"

	"montage/internal/logging"
	"montage/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Lanes      int
	LastError  string
	LastRun    *queue.Run
	QueueStats map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastRun := m.lastRun
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	summary := StatusSummary{Running: running, Lanes: m.laneCount(), QueueStats: stats}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastRun != nil {
		copy := *lastRun
		summary.LastRun = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRun(run *queue.Run) {
	m.mu.Lock()
	if run != nil {
		copy := *run
		m.lastRun = &copy
	} else {
		m.lastRun = nil
	}
	m.mu.Unlock()
}
