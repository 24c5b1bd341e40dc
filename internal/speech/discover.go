package speech

import (
	"context"
	"log/slog"

	"montage/internal/logging"
)

// Discover asks the provider for its capabilities once. Failures degrade to
// the plain feature set so synthesis can still proceed.
func Discover(ctx context.Context, provider Provider, logger *slog.Logger) Capabilities {
	logger = logging.NewComponentLogger(logger, "speech")
	if provider == nil {
		return Capabilities{}
	}
	caps, err := provider.Capabilities(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "speech capability discovery failed; using plain synthesis",
			"speech_discovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check speech.endpoint and that the provider is running"),
			logging.String(logging.FieldImpact, "pauses are rendered as trailing silence"),
		)
		return Capabilities{}
	}
	logger.Info("speech provider capabilities",
		logging.Bool("markup", caps.Markup),
		logging.Bool("rate", caps.Rate),
		logging.Int("max_chars", caps.MaxChars),
		logging.String(logging.FieldEventType, "speech_capabilities"),
	)
	return caps
}

// Unavailable is a provider that never produces audio. Narration falls back
// to silence clips for every segment.
type Unavailable struct{}

// Synthesize implements Provider.
func (Unavailable) Synthesize(context.Context, Request) ([]byte, Format, error) {
	return nil, "", ErrUnavailable
}

// Capabilities implements Provider.
func (Unavailable) Capabilities(context.Context) (Capabilities, error) {
	return Capabilities{}, nil
}
