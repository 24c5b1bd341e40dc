package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"montage/internal/config"
	"montage/internal/deps"
	"montage/internal/speech/httptts"
	"montage/internal/speech/sherpa"
)

const speechCheckTimeout = 10 * time.Second

// CheckSpeech verifies the configured speech provider can be used.
func CheckSpeech(ctx context.Context, cfg *config.Config) Result {
	const name = "Speech provider"
	switch cfg.Speech.Provider {
	case config.ProviderHTTP:
		return CheckSpeechEndpoint(ctx, cfg.Speech)
	case config.ProviderSherpa:
		model, tokens := sherpa.ModelFiles(sherpa.Config{
			ModelDir: cfg.Speech.ModelDir,
			Model:    cfg.Speech.SherpaModel,
			Tokens:   cfg.Speech.SherpaTokens,
		})
		for _, path := range []string{model, tokens} {
			if path == "" {
				return Result{Name: name, Detail: "sherpa model or tokens not configured"}
			}
			if r := CheckFileReadable(name, path); !r.Passed {
				return r
			}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("sherpa model %s", model)}
	case config.ProviderSilence:
		return Result{Name: name, Passed: true, Detail: "Disabled (silent placeholders)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unsupported provider %q", cfg.Speech.Provider)}
	}
}

// CheckSpeechEndpoint verifies the HTTP speech service answers its
// capabilities endpoint. It uses a single attempt with a short timeout.
func CheckSpeechEndpoint(ctx context.Context, cfg config.Speech) Result {
	const name = "Speech provider"
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}
	client, err := httptts.New(httptts.Config{
		Endpoint:       endpoint,
		APIKey:         cfg.APIKey,
		TimeoutSeconds: int(speechCheckTimeout / time.Second),
	})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	checkCtx, cancel := context.WithTimeout(ctx, speechCheckTimeout)
	defer cancel()
	caps, err := client.Capabilities(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(endpoint, err)}
	}
	detail := fmt.Sprintf("%s reachable", endpoint)
	if caps.Markup {
		detail += " (markup)"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFileReadable verifies that path is a readable regular file.
func CheckFileReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckSystemDeps evaluates the media binaries for the given config. Both the
// daemon and the CLI check command use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	results := deps.CheckBinaries(ctx, []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for trimming, stretching, mixing and rendering",
			VersionArgs: []string{"-version"},
		},
	})
	probe := deps.ResolveFFprobe(cfg.FFmpegBinary(), cfg.Tools.FFprobe)
	if probe.Available {
		probe.Version = deps.ProbeVersion(ctx, probe.Command, "-version")
	}
	return append(results, probe)
}

// DepsResults converts binary statuses into preflight results. Optional
// binaries always pass.
func DepsResults(statuses []deps.Status) []Result {
	results := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		detail := s.Command
		if !s.Available {
			detail = s.Detail
		}
		results = append(results, Result{Name: s.Name, Passed: s.Available || s.Optional, Detail: detail})
	}
	return results
}

func summarizeNetworkError(endpoint string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s timed out (speech service unresponsive)", endpoint)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%s timed out (speech service unreachable)", endpoint)
	}
	return err.Error()
}
