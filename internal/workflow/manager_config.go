package workflow

import (
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/queue"
)

// ConfigureStages registers the stage handlers the workflow will run. Handlers
// for stages missing from the stage table are ignored.
func (m *Manager) ConfigureStages(handlers ...pipeline.Handler) {
	registered := make(map[queue.Stage]pipeline.Handler, len(handlers))
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if _, ok := pipeline.SpecFor(handler.Stage()); !ok {
			m.logger.Warn("ignoring handler for unknown stage", logging.String(logging.FieldStage, string(handler.Stage())))
			continue
		}
		registered[handler.Stage()] = handler
	}

	m.mu.Lock()
	m.handlers = registered
	m.mu.Unlock()
}

func (m *Manager) handlerFor(stage queue.Stage) (pipeline.Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handler, ok := m.handlers[stage]
	return handler, ok
}

func (m *Manager) laneCount() int {
	if m.cfg.Workflow.Workers < 1 {
		return 1
	}
	return m.cfg.Workflow.Workers
}
