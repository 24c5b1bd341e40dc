package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir      string `toml:"work_dir"`
	OutputDir    string `toml:"output_dir"`
	StateDir     string `toml:"state_dir"`
	AssetCatalog string `toml:"asset_catalog"`
	EnvFile      string `toml:"env_file"`
}

// Workflow contains worker scheduling and retry budgets.
type Workflow struct {
	Workers             int  `toml:"workers"`
	PollInterval        int  `toml:"poll_interval"`
	HeartbeatInterval   int  `toml:"heartbeat_interval"`
	HeartbeatTimeout    int  `toml:"heartbeat_timeout"`
	StageRetryBudget    int  `toml:"stage_retry_budget"`
	RenderRetryBudget   int  `toml:"render_retry_budget"`
	RetryBackoffSeconds int  `toml:"retry_backoff_seconds"`
	AutoApprove         bool `toml:"auto_approve"`
}

// Speech contains speech synthesis provider settings.
type Speech struct {
	Provider        string  `toml:"provider"`
	Endpoint        string  `toml:"endpoint"`
	APIKey          string  `toml:"api_key"`
	Voice           string  `toml:"voice"`
	Language        string  `toml:"language"`
	Volume          float64 `toml:"volume"`
	ChunkLimit      int     `toml:"chunk_limit"`
	Markup          bool    `toml:"markup"`
	MaxRetries      int     `toml:"max_retries"`
	RetryBackoffMS  int     `toml:"retry_backoff_ms"`
	RequestTimeout  int     `toml:"request_timeout"`
	ModelDir        string  `toml:"model_dir"`
	SherpaModel     string  `toml:"sherpa_model"`
	SherpaTokens    string  `toml:"sherpa_tokens"`
	SherpaDataDir   string  `toml:"sherpa_data_dir"`
	SherpaSpeakerID int     `toml:"sherpa_speaker_id"`
	SherpaThreads   int     `toml:"sherpa_threads"`
}

// Reconcile contains the duration reconciliation bounds.
type Reconcile struct {
	Tolerance       float64 `toml:"tolerance"`
	AcceptWindow    float64 `toml:"accept_window"`
	MaxSpeedup      float64 `toml:"max_speedup"`
	MaxPausePerMark float64 `toml:"max_pause_per_mark"`
	MinSlowdown     float64 `toml:"min_slowdown"`
	LargeGapFactor  float64 `toml:"large_gap_factor"`
	SmallGapRatio   float64 `toml:"small_gap_ratio"`
	Extension       string  `toml:"extension"`
	Parallelism     int     `toml:"parallelism"`
}

// Render contains output frame and card settings.
type Render struct {
	Width            int     `toml:"width"`
	Height           int     `toml:"height"`
	FPS              int     `toml:"fps"`
	PlaceholderColor string  `toml:"placeholder_color"`
	CardColor        string  `toml:"card_color"`
	FontFile         string  `toml:"font_file"`
	IntroEnabled     bool    `toml:"intro_enabled"`
	IntroSeconds     float64 `toml:"intro_seconds"`
	OutroEnabled     bool    `toml:"outro_enabled"`
	OutroSeconds     float64 `toml:"outro_seconds"`
	VideoCodec       string  `toml:"video_codec"`
	AudioCodec       string  `toml:"audio_codec"`
	CRF              int     `toml:"crf"`
}

// Subtitles contains burned-in caption settings.
type Subtitles struct {
	Enabled          bool    `toml:"enabled"`
	MaxChars         int     `toml:"max_chars"`
	VerticalFraction float64 `toml:"vertical_fraction"`
	MaxSeconds       float64 `toml:"max_seconds"`
	FadeSeconds      float64 `toml:"fade_seconds"`
	FontSize         int     `toml:"font_size"`
}

// Mixer contains background music, ducking and sound effect settings.
type Mixer struct {
	BGMGain        float64 `toml:"bgm_gain"`
	DuckEnabled    bool    `toml:"duck_enabled"`
	DuckLevel      float64 `toml:"duck_level"`
	DuckFade       float64 `toml:"duck_fade_seconds"`
	SFXEnabled     bool    `toml:"sfx_enabled"`
	SFXVolume      float64 `toml:"sfx_volume"`
	LoudnessTarget float64 `toml:"loudness_target"`
	SampleRate     int     `toml:"sample_rate"`
}

// Storage contains object storage settings.
type Storage struct {
	Root          string `toml:"root"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Telemetry contains OpenTelemetry exporter settings.
type Telemetry struct {
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
	Degraded       bool   `toml:"degraded"`
}

// API contains the daemon HTTP control surface settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Tools names the external media binaries.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Config encapsulates all configuration values for montage.
//
// Configuration sections by subsystem:
//   - Paths: work, output and state directories plus the asset catalog
//   - Workflow: worker lanes, polling, heartbeats and retry budgets
//   - Speech: synthesis provider selection and request limits
//   - Reconcile: duration reconciliation bounds
//   - Render, Subtitles, Mixer: output composition
//   - Storage: published artifact location
//   - Telemetry, Notifications, API, Logging: operations
//   - Tools: ffmpeg and ffprobe binaries
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Speech        Speech        `toml:"speech"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Render        Render        `toml:"render"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Mixer         Mixer         `toml:"mixer"`
	Storage       Storage       `toml:"storage"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
	Tools         Tools         `toml:"tools"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/montage/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(cfg.Paths.EnvFile); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile populates unset environment variables from a dotenv file.
// A missing default file is not an error; an explicitly configured one is.
func loadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("paths.env_file: %w", err)
	}
	if err := godotenv.Load(expanded); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("montage.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.StateDir, c.Storage.Root} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "montage.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "montaged.lock")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "montage.log")
}

// RunWorkDir returns the scratch directory owned by a single pipeline run.
func (c *Config) RunWorkDir(runID string) string {
	return filepath.Join(c.Paths.WorkDir, "runs", runID)
}

// FFmpegBinary returns the ffmpeg executable used for media operations.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Tools.FFmpeg); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Tools.FFprobe); v != "" {
		return v
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
