package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/deps"
	"montage/internal/logging"
	"montage/internal/preflight"
	"montage/internal/queue"
	"montage/internal/workflow"
)

// Checks runs the startup checks the daemon refuses to start without.
type Checks func(ctx context.Context, cfg *config.Config) []preflight.Result

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	runs     *api.RunService
	checks   Checks

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	APIAddress   string
	Dependencies []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithChecks replaces the startup checks.
func WithChecks(checks Checks) Option {
	return func(d *Daemon) { d.checks = checks }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		runs:     api.NewRunService(store),
		checks:   StartupChecks,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	srv, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// StartupChecks runs the directory, speech, and binary checks.
func StartupChecks(ctx context.Context, cfg *config.Config) []preflight.Result {
	results := preflight.RunAll(ctx, cfg)
	return append(results, preflight.DepsResults(preflight.CheckSystemDeps(ctx, cfg))...)
}

// Start acquires the daemon lock, runs startup checks, and launches the
// workflow lanes and the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another montage daemon instance is already running")
	}

	if err := d.runChecks(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	reset, err := d.store.ResetRunningTasks(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset running tasks: %w", err)
	}
	if reset > 0 {
		d.logger.Info("requeued tasks left running by a previous process",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "tasks_reset"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("montage daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) runChecks(ctx context.Context) error {
	if d.checks == nil {
		return nil
	}
	failures := preflight.Failures(d.checks(ctx, d.cfg))
	if len(failures) == 0 {
		return nil
	}
	names := make([]string, 0, len(failures))
	for _, failure := range failures {
		names = append(names, failure.Name)
		logging.ErrorWithContext(d.logger, "startup check failed", "preflight_failed",
			logging.String("check", failure.Name),
			logging.String("detail", failure.Detail),
			logging.String(logging.FieldErrorHint, "run `montage check` for details"),
			logging.String(logging.FieldImpact, "daemon will not start"),
		)
	}
	return fmt.Errorf("startup checks failed: %s", strings.Join(names, ", "))
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next daemon start may report a running instance"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("montage daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
}

// APIAddress returns the address the control API listens on, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}
