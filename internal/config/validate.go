package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateMixer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		return errors.New("storage.root must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.StageRetryBudget < 0 || c.Workflow.RenderRetryBudget < 0 {
		return errors.New("workflow retry budgets must not be negative")
	}
	if c.Workflow.RetryBackoffSeconds < 0 {
		return errors.New("workflow.retry_backoff_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateSpeech() error {
	switch c.Speech.Provider {
	case ProviderHTTP:
		if c.Speech.Endpoint == "" {
			return errors.New("speech.endpoint must be set when speech.provider is \"http\"")
		}
	case ProviderSherpa:
		if strings.TrimSpace(c.Speech.SherpaModel) == "" || strings.TrimSpace(c.Speech.SherpaTokens) == "" {
			return errors.New("speech.sherpa_model and speech.sherpa_tokens must be set when speech.provider is \"sherpa\"")
		}
	case ProviderSilence:
	default:
		return fmt.Errorf("speech.provider: unsupported value %q (want http, sherpa or silence)", c.Speech.Provider)
	}
	if c.Speech.Volume <= 0 {
		return errors.New("speech.volume must be positive")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	r := c.Reconcile
	if r.Tolerance <= 0 {
		return errors.New("reconcile.tolerance must be positive")
	}
	if r.AcceptWindow < r.Tolerance {
		return errors.New("reconcile.accept_window must be at least reconcile.tolerance")
	}
	if r.MaxSpeedup < 1 {
		return errors.New("reconcile.max_speedup must be >= 1")
	}
	if r.MaxPausePerMark < 0 {
		return errors.New("reconcile.max_pause_per_mark must not be negative")
	}
	if r.MinSlowdown <= 0 || r.MinSlowdown > 1 {
		return errors.New("reconcile.min_slowdown must be in (0, 1]")
	}
	if r.LargeGapFactor < r.MinSlowdown || r.LargeGapFactor > 1 {
		return errors.New("reconcile.large_gap_factor must be in [reconcile.min_slowdown, 1]")
	}
	if r.SmallGapRatio < 0 {
		return errors.New("reconcile.small_gap_ratio must not be negative")
	}
	switch r.Extension {
	case ExtensionFreeze, ExtensionBoomerang:
	default:
		return fmt.Errorf("reconcile.extension: unsupported value %q", r.Extension)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.New("render.width and render.height must be positive")
	}
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return errors.New("render.width and render.height must be even")
	}
	if c.Render.FPS <= 0 {
		return errors.New("render.fps must be positive")
	}
	if c.Render.IntroEnabled && c.Render.IntroSeconds <= 0 {
		return errors.New("render.intro_seconds must be positive when the intro is enabled")
	}
	if c.Render.OutroEnabled && c.Render.OutroSeconds <= 0 {
		return errors.New("render.outro_seconds must be positive when the outro is enabled")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if !c.Subtitles.Enabled {
		return nil
	}
	if c.Subtitles.MaxChars < 2 {
		return errors.New("subtitles.max_chars must be at least 2")
	}
	if c.Subtitles.VerticalFraction < 0 || c.Subtitles.VerticalFraction > 1 {
		return errors.New("subtitles.vertical_fraction must be between 0 and 1")
	}
	if c.Subtitles.MaxSeconds <= 0 {
		return errors.New("subtitles.max_seconds must be positive")
	}
	if c.Subtitles.FadeSeconds < 0 {
		return errors.New("subtitles.fade_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateMixer() error {
	if c.Mixer.BGMGain < 0 {
		return errors.New("mixer.bgm_gain must not be negative")
	}
	if c.Mixer.DuckLevel < 0 || c.Mixer.DuckLevel > 1 {
		return errors.New("mixer.duck_level must be between 0 and 1")
	}
	if c.Mixer.DuckFade < 0 {
		return errors.New("mixer.duck_fade_seconds must not be negative")
	}
	if c.Mixer.SFXVolume < 0 {
		return errors.New("mixer.sfx_volume must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}
