package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/preflight"
	"montage/internal/queue"
	"montage/internal/queueaccess"
)

// Snapshot is the status view the CLI renders.
type Snapshot struct {
	Status            api.DaemonStatus
	Reachable         bool
	DependencySummary DependencySummary
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// BuildStatusSnapshot asks a running daemon for its status and falls back to
// reading the run store and probing dependencies locally.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}

	if client, err := queueaccess.DialDaemon(ctx, cfg); err == nil {
		if status, statusErr := client.Status(ctx); statusErr == nil && status != nil {
			snapshot.Status = *status
			snapshot.Reachable = true
		}
	}

	if !snapshot.Reachable {
		snapshot.Status.QueueDBPath = cfg.QueueDBPath()
		snapshot.Status.LockFilePath = cfg.LockPath()
		snapshot.Status.PID = ReadPID(PIDPath(cfg))
		snapshot.Status.Workflow.QueueStats = localStats(ctx, cfg)
	}
	if len(snapshot.Status.Dependencies) == 0 {
		snapshot.Status.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(ctx, cfg))
	}
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Status.Dependencies)
	return snapshot, nil
}

func localStats(ctx context.Context, cfg *config.Config) map[string]int {
	if _, err := os.Stat(cfg.QueueDBPath()); err != nil {
		return api.StatsByName(nil)
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, err := queue.Open(cfg)
	if err != nil {
		return api.StatsByName(nil)
	}
	defer store.Close()
	stats, err := store.Stats(queryCtx)
	if err != nil {
		return api.StatsByName(nil)
	}
	return api.StatsByName(stats)
}

// PIDPath is where the daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return strings.TrimSuffix(cfg.LockPath(), ".lock") + ".pid"
}

// WritePIDFile records the current process id at path.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the process id recorded at path, or 0.
func ReadPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []api.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
