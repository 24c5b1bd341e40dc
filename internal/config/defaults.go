package config

const (
	defaultWorkDir               = "~/.local/share/montage/work"
	defaultOutputDir             = "~/.local/share/montage/output"
	defaultStateDir              = "~/.local/share/montage/state"
	defaultStorageRoot           = "~/.local/share/montage/published"
	defaultWorkers               = 2
	defaultPollInterval          = 2
	defaultHeartbeatInterval     = 15
	defaultHeartbeatTimeout      = 300
	defaultStageRetryBudget      = 3
	defaultRenderRetryBudget     = 12
	defaultRetryBackoffSeconds   = 1
	defaultSpeechProvider        = "http"
	defaultSpeechEndpoint        = "http://127.0.0.1:8081"
	defaultSpeechVoice           = "en-amy"
	defaultSpeechLanguage        = "en"
	defaultSpeechVolume          = 1.0
	defaultSpeechChunkLimit      = 2000
	defaultSpeechMaxRetries      = 3
	defaultSpeechRetryBackoffMS  = 250
	defaultSpeechRequestTimeout  = 60
	defaultSherpaThreads         = 1
	defaultTolerance             = 0.05
	defaultAcceptWindow          = 0.5
	defaultMaxSpeedup            = 1.25
	defaultMaxPausePerMark       = 0.8
	defaultMinSlowdown           = 0.77
	defaultLargeGapFactor        = 0.85
	defaultSmallGapRatio         = 0.3
	defaultExtension             = ExtensionFreeze
	defaultParallelism           = 4
	defaultWidth                 = 1080
	defaultHeight                = 1920
	defaultFPS                   = 30
	defaultPlaceholderColor      = "black"
	defaultCardColor             = "0x1d2733"
	defaultIntroSeconds          = 2.5
	defaultOutroSeconds          = 3.0
	defaultVideoCodec            = "libx264"
	defaultAudioCodec            = "aac"
	defaultCRF                   = 20
	defaultSubtitleMaxChars      = 18
	defaultSubtitleVertical      = 0.78
	defaultSubtitleMaxSeconds    = 2.5
	defaultSubtitleFadeSeconds   = 0.2
	defaultSubtitleFontSize      = 64
	defaultBGMGain               = 0.18
	defaultDuckLevel             = 0.35
	defaultDuckFade              = 0.2
	defaultSFXVolume             = 0.35
	defaultLoudnessTarget        = -16.0
	defaultSampleRate            = 48000
	defaultTelemetryServiceName  = "montage"
	defaultNotifyRequestTimeout  = 10
	defaultAPIBind               = "127.0.0.1:7487"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Extension strategies for closing large video gaps.
const (
	ExtensionFreeze    = "freeze"
	ExtensionBoomerang = "boomerang"
)

// Speech provider kinds.
const (
	ProviderHTTP    = "http"
	ProviderSherpa  = "sherpa"
	ProviderSilence = "silence"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			PollInterval:        defaultPollInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			StageRetryBudget:    defaultStageRetryBudget,
			RenderRetryBudget:   defaultRenderRetryBudget,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
		},
		Speech: Speech{
			Provider:       defaultSpeechProvider,
			Endpoint:       defaultSpeechEndpoint,
			Voice:          defaultSpeechVoice,
			Language:       defaultSpeechLanguage,
			Volume:         defaultSpeechVolume,
			ChunkLimit:     defaultSpeechChunkLimit,
			Markup:         true,
			MaxRetries:     defaultSpeechMaxRetries,
			RetryBackoffMS: defaultSpeechRetryBackoffMS,
			RequestTimeout: defaultSpeechRequestTimeout,
			SherpaThreads:  defaultSherpaThreads,
		},
		Reconcile: Reconcile{
			Tolerance:       defaultTolerance,
			AcceptWindow:    defaultAcceptWindow,
			MaxSpeedup:      defaultMaxSpeedup,
			MaxPausePerMark: defaultMaxPausePerMark,
			MinSlowdown:     defaultMinSlowdown,
			LargeGapFactor:  defaultLargeGapFactor,
			SmallGapRatio:   defaultSmallGapRatio,
			Extension:       defaultExtension,
			Parallelism:     defaultParallelism,
		},
		Render: Render{
			Width:            defaultWidth,
			Height:           defaultHeight,
			FPS:              defaultFPS,
			PlaceholderColor: defaultPlaceholderColor,
			CardColor:        defaultCardColor,
			IntroEnabled:     true,
			IntroSeconds:     defaultIntroSeconds,
			OutroEnabled:     true,
			OutroSeconds:     defaultOutroSeconds,
			VideoCodec:       defaultVideoCodec,
			AudioCodec:       defaultAudioCodec,
			CRF:              defaultCRF,
		},
		Subtitles: Subtitles{
			Enabled:          true,
			MaxChars:         defaultSubtitleMaxChars,
			VerticalFraction: defaultSubtitleVertical,
			MaxSeconds:       defaultSubtitleMaxSeconds,
			FadeSeconds:      defaultSubtitleFadeSeconds,
			FontSize:         defaultSubtitleFontSize,
		},
		Mixer: Mixer{
			BGMGain:        defaultBGMGain,
			DuckEnabled:    true,
			DuckLevel:      defaultDuckLevel,
			DuckFade:       defaultDuckFade,
			SFXEnabled:     true,
			SFXVolume:      defaultSFXVolume,
			LoudnessTarget: defaultLoudnessTarget,
			SampleRate:     defaultSampleRate,
		},
		Storage: Storage{
			Root: defaultStorageRoot,
		},
		Telemetry: Telemetry{
			ServiceName: defaultTelemetryServiceName,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
			Degraded:       true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
