package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveFFprobe reports the ffprobe binary media inspection will execute.
//
// An explicitly configured ffprobe wins. Otherwise an ffprobe sitting next to
// the configured ffmpeg is preferred over the one on PATH, so a pinned ffmpeg
// build is probed by its matching ffprobe.
func ResolveFFprobe(ffmpegCommand, ffprobeCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Required for media inspection",
	}

	configured := strings.TrimSpace(ffprobeCommand)
	if configured != "" && configured != "ffprobe" {
		result.Command = configured
		if _, err := exec.LookPath(configured); err != nil {
			result.Detail = fmt.Sprintf("binary %q not found", configured)
			return result
		}
		result.Available = true
		return result
	}

	ffmpegBinary := strings.TrimSpace(ffmpegCommand)
	if ffmpegBinary != "" {
		if resolved, err := exec.LookPath(ffmpegBinary); err == nil {
			if candidate, ok := sidecarCandidate(resolved, "ffprobe"); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	if path, err := exec.LookPath("ffprobe"); err == nil {
		result.Command = path
		result.Available = true
		return result
	}

	result.Command = "ffprobe"
	result.Detail = fmt.Sprintf("binary %q not found", "ffprobe")
	return result
}

func sidecarCandidate(binaryPath, name string) (string, bool) {
	if binaryPath == "" {
		return "", false
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(binaryPath), name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
