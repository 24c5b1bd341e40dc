package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"montage/internal/api"
	"montage/internal/daemonctl"
	"montage/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		text += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func severityKind(severity string) statusKind {
	switch severity {
	case "ok":
		return statusOK
	case "warn":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderSnapshot formats the daemon, queue, and dependency sections of
// `montage status`.
func renderSnapshot(snapshot *daemonctl.Snapshot, colorize bool) string {
	status := snapshot.Status
	lines := renderSectionHeader("Daemon", colorize)
	switch {
	case snapshot.Reachable && status.Running:
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	case snapshot.Reachable:
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "API up, workflow stopped", colorize))
	case status.PID > 0:
		lines = append(lines, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("Not reachable (stale pid %d)", status.PID), colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusInfo, "Not running", colorize))
	}
	if snapshot.Reachable {
		lines = append(lines, renderStatusLine("Lanes", statusInfo, fmt.Sprintf("%d", status.Workflow.Lanes), colorize))
	}
	lines = append(lines, renderStatusLine("Run store", statusInfo, status.QueueDBPath, colorize))
	if last := strings.TrimSpace(status.Workflow.LastError); last != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, last, colorize))
	}
	if run := status.Workflow.LastRun; run != nil {
		lines = append(lines, renderStatusLine("Last run", statusInfo, fmt.Sprintf("%s %s (%s)", run.ID, run.Title, run.Status), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Runs", colorize)...)
	total := 0
	for _, name := range api.SortedStatuses(status.Workflow.QueueStats) {
		count := status.Workflow.QueueStats[name]
		total += count
		if count == 0 {
			continue
		}
		kind := statusInfo
		switch name {
		case "FAILED":
			kind = statusError
		case "COMPLETED":
			kind = statusOK
		case "REVIEW":
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(name, kind, fmt.Sprintf("%d", count), colorize))
	}
	if total == 0 {
		lines = append(lines, renderStatusLine("Runs", statusInfo, "None", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	summary := snapshot.DependencySummary
	lines = append(lines, renderStatusLine("Summary", severityKind(summary.Severity), summary.Detail, colorize))
	for _, dep := range status.Dependencies {
		lines = append(lines, dependencyLine(dep, colorize))
	}
	return strings.Join(lines, "\n") + "\n"
}

func dependencyLine(dep api.DependencyStatus, colorize bool) string {
	if dep.Available {
		message := dep.Command
		if dep.Version != "" {
			message += " (" + dep.Version + ")"
		}
		return renderStatusLine(dep.Name, statusOK, message, colorize)
	}
	detail := strings.TrimSpace(dep.Detail)
	if detail == "" {
		detail = "not found"
	}
	kind := statusError
	if dep.Optional {
		kind = statusWarn
		detail += " (optional)"
	}
	return renderStatusLine(dep.Name, kind, detail, colorize)
}

func checkResultLine(result preflight.Result, colorize bool) string {
	if result.Passed {
		return renderStatusLine(result.Name, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(result.Name, statusError, result.Detail, colorize)
}
