package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 2 * time.Second

// Requirement defines an external binary montage shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are passed to the binary to read its version
	// banner. A failing probe leaves the dependency available.
	VersionArgs []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// CheckBinaries resolves each requirement on PATH and reads its version when
// the requirement asks for it.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(ctx, req))
	}
	return results
}

func check(ctx context.Context, req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	if _, err := exec.LookPath(status.Command); err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	if len(req.VersionArgs) > 0 {
		status.Version = ProbeVersion(ctx, status.Command, req.VersionArgs...)
	}
	return status
}

// ProbeVersion runs command with args and returns the first non-empty output
// line, or "" when the binary fails or prints nothing within a short timeout.
func ProbeVersion(ctx context.Context, command string, args ...string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	probeCtx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, command, args...).CombinedOutput()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return versionBanner(line)
		}
	}
	return ""
}

// versionBanner trims ffmpeg-style banners ("ffmpeg version 7.0 Copyright ...")
// down to the name and version.
func versionBanner(line string) string {
	if idx := strings.Index(line, " Copyright"); idx > 0 {
		line = line[:idx]
	}
	if len(line) > 80 {
		line = line[:80]
	}
	return strings.TrimSpace(line)
}
