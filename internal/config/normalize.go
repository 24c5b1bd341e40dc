package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSpeech(); err != nil {
		return err
	}
	c.normalizeReconcile()
	c.normalizeRender()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("MONTAGE_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.AssetCatalog, err = expandPath(strings.TrimSpace(c.Paths.AssetCatalog)); err != nil {
		return fmt.Errorf("paths.asset_catalog: %w", err)
	}
	return nil
}

func (c *Config) normalizeSpeech() error {
	c.Speech.Provider = strings.ToLower(strings.TrimSpace(c.Speech.Provider))
	if c.Speech.Provider == "" {
		c.Speech.Provider = defaultSpeechProvider
	}
	c.Speech.Endpoint = strings.TrimRight(strings.TrimSpace(c.Speech.Endpoint), "/")
	if c.Speech.APIKey == "" {
		if value, ok := os.LookupEnv("MONTAGE_SPEECH_API_KEY"); ok {
			c.Speech.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Speech.ChunkLimit <= 0 {
		c.Speech.ChunkLimit = defaultSpeechChunkLimit
	}
	if c.Speech.MaxRetries <= 0 {
		c.Speech.MaxRetries = defaultSpeechMaxRetries
	}
	if c.Speech.RequestTimeout <= 0 {
		c.Speech.RequestTimeout = defaultSpeechRequestTimeout
	}
	if c.Speech.SherpaThreads <= 0 {
		c.Speech.SherpaThreads = defaultSherpaThreads
	}
	var err error
	if c.Speech.ModelDir, err = expandPath(strings.TrimSpace(c.Speech.ModelDir)); err != nil {
		return fmt.Errorf("speech.model_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeReconcile() {
	c.Reconcile.Extension = strings.ToLower(strings.TrimSpace(c.Reconcile.Extension))
	if c.Reconcile.Extension == "" {
		c.Reconcile.Extension = defaultExtension
	}
	if c.Reconcile.Parallelism <= 0 {
		c.Reconcile.Parallelism = defaultParallelism
	}
}

func (c *Config) normalizeRender() {
	c.Render.PlaceholderColor = strings.TrimSpace(c.Render.PlaceholderColor)
	if c.Render.PlaceholderColor == "" {
		c.Render.PlaceholderColor = defaultPlaceholderColor
	}
	c.Render.CardColor = strings.TrimSpace(c.Render.CardColor)
	if c.Render.CardColor == "" {
		c.Render.CardColor = defaultCardColor
	}
	if strings.TrimSpace(c.Render.VideoCodec) == "" {
		c.Render.VideoCodec = defaultVideoCodec
	}
	if strings.TrimSpace(c.Render.AudioCodec) == "" {
		c.Render.AudioCodec = defaultAudioCodec
	}
	if c.Mixer.SampleRate <= 0 {
		c.Mixer.SampleRate = defaultSampleRate
	}
}

func (c *Config) normalizeStorage() error {
	var err error
	if c.Storage.Root, err = expandPath(strings.TrimSpace(c.Storage.Root)); err != nil {
		return fmt.Errorf("storage.root: %w", err)
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MONTAGE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
