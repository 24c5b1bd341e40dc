package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"montage/internal/services"
)

// CommandRunner executes name with args and returns a descriptive error on a
// non-zero exit.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Runner runs ffmpeg argument lists.
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// Tool executes the ffmpeg binary.
type Tool struct {
	binary string
	run    CommandRunner
}

// New constructs a Tool for the given binary; an empty binary means "ffmpeg" on PATH.
func New(binary string) *Tool {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Tool{binary: binary, run: defaultCommandRunner}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (t *Tool) WithCommandRunner(r CommandRunner) {
	if t != nil && r != nil {
		t.run = r
	}
}

// Binary returns the configured executable.
func (t *Tool) Binary() string {
	return t.binary
}

// Run executes ffmpeg with the common quiet/overwrite prefix.
func (t *Tool) Run(ctx context.Context, args ...string) error {
	full := make([]string, 0, len(args)+4)
	full = append(full, "-y", "-hide_banner", "-loglevel", "error")
	full = append(full, args...)
	if err := t.run(ctx, t.binary, full...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "media", "ffmpeg", "ffmpeg exited with an error", err)
	}
	return nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
