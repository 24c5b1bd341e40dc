package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"montage/internal/assets"
	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/media/ffprobe"
	"montage/internal/mixer"
	"montage/internal/narration"
	"montage/internal/notifications"
	"montage/internal/queue"
	"montage/internal/reconcile"
	"montage/internal/render"
	"montage/internal/services"
	"montage/internal/speech"
	"montage/internal/speech/httptts"
	"montage/internal/speech/sherpa"
	"montage/internal/storage"
	"montage/internal/stretch"
	"montage/internal/timeline"
)

// Services holds the collaborators every stage handler uses. It is built once
// at startup; handlers never construct their own clients.
type Services struct {
	Config       *config.Config
	Store        *queue.Store
	Logger       *slog.Logger
	FFmpeg       ffmpeg.Runner
	Prober       ffprobe.Prober
	Provider     speech.Provider
	Capabilities speech.Capabilities
	Narrator     *narration.Adapter
	Engine       *reconcile.Engine
	Renderer     *render.Renderer
	Catalog      *assets.Catalog
	Storage      storage.Store
	Notifier     notifications.Service
	Classifier   Classifier
	Scripts      ScriptWriter
	Copy         timeline.CopyWriter

	closers []func()
}

// Option overrides one collaborator, mostly for tests.
type Option func(*Services)

// WithMedia replaces the ffmpeg runner and the prober.
func WithMedia(runner ffmpeg.Runner, prober ffprobe.Prober) Option {
	return func(s *Services) {
		s.FFmpeg = runner
		s.Prober = prober
	}
}

// WithProvider replaces the configured speech provider.
func WithProvider(provider speech.Provider) Option {
	return func(s *Services) { s.Provider = provider }
}

// WithStorage replaces the artifact store.
func WithStorage(store storage.Store) Option {
	return func(s *Services) { s.Storage = store }
}

// WithNotifier replaces the notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(s *Services) { s.Notifier = notifier }
}

// WithClassifier replaces the scene classifier.
func WithClassifier(classifier Classifier) Option {
	return func(s *Services) { s.Classifier = classifier }
}

// WithScriptWriter replaces the script writer.
func WithScriptWriter(writer ScriptWriter) Option {
	return func(s *Services) { s.Scripts = writer }
}

// WithCopyWriter replaces the card copy writer.
func WithCopyWriter(writer timeline.CopyWriter) Option {
	return func(s *Services) { s.Copy = writer }
}

// NewServices wires the collaborators from configuration. Speech capabilities
// are discovered once here and fix the narration strategy.
func NewServices(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Services, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Services{Config: cfg, Store: store, Logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	if s.FFmpeg == nil {
		s.FFmpeg = ffmpeg.New(cfg.FFmpegBinary())
	}
	if s.Prober == nil {
		s.Prober = ffprobe.Tool{Binary: cfg.FFprobeBinary()}
	}
	if s.Provider == nil {
		provider, closer, err := NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		s.Provider = provider
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
	}
	if s.Storage == nil {
		s.Storage = storage.NewFromConfig(cfg)
	}
	if s.Notifier == nil {
		s.Notifier = notifications.NewService(cfg)
	}
	if s.Classifier == nil {
		s.Classifier = WholeClipClassifier{Prober: s.Prober, Logger: logger}
	}
	if s.Scripts == nil {
		s.Scripts = DescriptionWriter{}
	}
	if s.Copy == nil {
		s.Copy = timeline.TitleCopyWriter{}
	}

	catalog, err := assets.LoadFromConfig(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Catalog = catalog

	s.Capabilities = speech.Discover(ctx, s.Provider, logger)
	s.Narrator = narration.New(s.Provider, s.Capabilities, cfg.Speech.Markup, s.FFmpeg, s.Prober, narration.OptionsFromConfig(cfg), logger)
	stretcher := stretch.New(s.FFmpeg, s.Prober, stretch.OptionsFromConfig(cfg), logger)
	s.Engine = reconcile.New(s.Narrator, stretcher, s.FFmpeg, s.Prober, reconcile.OptionsFromConfig(cfg), logger)

	var cues render.CueLookup
	if cfg.Mixer.SFXEnabled {
		if lib := catalog.Effects(); lib.Available() {
			cues = lib
		}
	}
	mix := mixer.New(s.FFmpeg, s.Prober, mixer.OptionsFromConfig(cfg), logger)
	s.Renderer = render.New(s.FFmpeg, s.Prober, mix, cues, render.OptionsFromConfig(cfg), logger)
	return s, nil
}

// Close releases providers that hold native resources.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewProvider builds the configured speech provider. The returned closer may
// be nil.
func NewProvider(cfg *config.Config) (speech.Provider, func(), error) {
	switch cfg.Speech.Provider {
	case config.ProviderHTTP:
		client, err := httptts.New(httptts.Config{
			Endpoint:       cfg.Speech.Endpoint,
			APIKey:         cfg.Speech.APIKey,
			Voice:          cfg.Speech.Voice,
			Language:       cfg.Speech.Language,
			TimeoutSeconds: cfg.Speech.RequestTimeout,
		})
		if err != nil {
			return nil, nil, services.Wrap(services.ErrConfiguration, "speech", "init", "http provider", err)
		}
		return client, nil, nil
	case config.ProviderSherpa:
		provider, err := sherpa.New(sherpa.Config{
			ModelDir:  cfg.Speech.ModelDir,
			Model:     cfg.Speech.SherpaModel,
			Tokens:    cfg.Speech.SherpaTokens,
			DataDir:   cfg.Speech.SherpaDataDir,
			SpeakerID: cfg.Speech.SherpaSpeakerID,
			Threads:   cfg.Speech.SherpaThreads,
		})
		if err != nil {
			return nil, nil, services.Wrap(services.ErrConfiguration, "speech", "init", "sherpa provider", err)
		}
		return provider, provider.Close, nil
	case config.ProviderSilence:
		return speech.Unavailable{}, nil, nil
	default:
		return nil, nil, services.Wrap(services.ErrConfiguration, "speech", "init",
			fmt.Sprintf("unsupported provider %q", cfg.Speech.Provider), nil)
	}
}
