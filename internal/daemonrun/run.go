package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"montage/internal/config"
	"montage/internal/daemon"
	"montage/internal/daemonctl"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/queue"
	"montage/internal/telemetry"
	"montage/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run starts the montage daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(signalCtx, cfg.Telemetry, opts.Version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", logging.Error(err))
		}
	}()

	logDependencySnapshot(logger, cfg)
	pidPath := daemonctl.PIDPath(cfg)
	if err := daemonctl.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open run store", logging.Error(err))
		return err
	}

	svc, err := pipeline.NewServices(signalCtx, cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build stage services: %w", err)
	}
	defer svc.Close()

	manager := workflow.NewManager(cfg, store, logger,
		workflow.WithNotifier(svc.Notifier),
		workflow.WithRecorder(telemetry.NewRecorder()),
	)
	manager.ConfigureStages(pipeline.Handlers(svc)...)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and run `montage check`"),
			logging.String(logging.FieldImpact, "no runs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("montage daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.FFmpegBinary()
	ffprobe := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("speech_provider", cfg.Speech.Provider),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("asset_catalog", strings.TrimSpace(cfg.Paths.AssetCatalog) != ""),
		logging.Bool("telemetry", strings.TrimSpace(cfg.Telemetry.Endpoint) != ""),
		logging.Bool("notifications", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
