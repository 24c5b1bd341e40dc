package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/notifications"
	"montage/internal/pipeline"
	"montage/internal/queue"
	"montage/internal/telemetry"
)

// Manager coordinates stage task processing using registered pipeline handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	recorder     *telemetry.Recorder
	now          func() time.Time

	heartbeat *HeartbeatMonitor

	handlers map[queue.Stage]pipeline.Handler

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastRun *queue.Run
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notification service built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) { m.notifier = notifier }
}

// WithRecorder reports stage executions to telemetry.
func WithRecorder(recorder *telemetry.Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = recorder }
}

// WithClock overrides the clock used for retry scheduling and heartbeat cutoffs.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		pollInterval: seconds(cfg.Workflow.PollInterval),
		handlers:     make(map[queue.Stage]pipeline.Handler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	m.heartbeat = NewHeartbeatMonitor(
		store,
		m.logger,
		seconds(cfg.Workflow.HeartbeatInterval),
		seconds(cfg.Workflow.HeartbeatTimeout),
		m.now,
	)
	return m
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}
