package main

import (
	"fmt"
	"strings"
	"testing"

	"montage/internal/api"
	"montage/internal/daemonctl"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green wrapped line, got %q", got)
	}
}

func TestRenderSnapshot(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "FFmpeg", Command: "ffmpeg", Available: true},
		{Name: "FFprobe", Command: "ffprobe"},
		{Name: "ntfy", Optional: true, Detail: "not configured"},
	}
	snapshot := &daemonctl.Snapshot{
		Reachable: true,
		Status: api.DaemonStatus{
			Running:     true,
			PID:         42,
			QueueDBPath: "/tmp/montage.db",
			Workflow: api.WorkflowStatus{
				Running:    true,
				Lanes:      2,
				QueueStats: map[string]int{"FAILED": 1, "COMPLETED": 3, "REVIEW": 0},
				LastError:  "render: ffmpeg exited 1",
			},
			Dependencies: deps,
		},
		DependencySummary: daemonctl.BuildDependencySummary(deps),
	}

	out := renderSnapshot(snapshot, false)
	for _, want := range []string{
		"[OK] Running (pid 42)",
		"[ERROR] render: ffmpeg exited 1",
		"FAILED:",
		"[OK] 3",
		"[ERROR] not found",
		"[WARN] not configured (optional)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("snapshot missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "REVIEW:") {
		t.Fatalf("zero-count statuses should be hidden:\n%s", out)
	}
}

func TestRenderSnapshotWithoutDaemon(t *testing.T) {
	snapshot := &daemonctl.Snapshot{
		Status: api.DaemonStatus{
			Workflow: api.WorkflowStatus{QueueStats: api.StatsByName(nil)},
		},
		DependencySummary: daemonctl.BuildDependencySummary(nil),
	}
	out := renderSnapshot(snapshot, false)
	if !strings.Contains(out, "[INFO] Not running") {
		t.Fatalf("expected not running line:\n%s", out)
	}
	if !strings.Contains(out, "Runs:") || !strings.Contains(out, "None") {
		t.Fatalf("expected empty runs line:\n%s", out)
	}
}
