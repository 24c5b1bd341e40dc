package narration

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"montage/internal/config"
	"montage/internal/fileutil"
	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/media/ffprobe"
	"montage/internal/services"
	"montage/internal/speech"
)

// Mode records which path produced an artifact.
type Mode string

const (
	ModeBaseline Mode = "baseline"
	ModePadded   Mode = "padded"
	ModeSpeed    Mode = "speed"
	ModeSilence  Mode = "silence"
)

// Artifact is a synthesized narration clip.
type Artifact struct {
	Path     string
	Duration float64
	Mode     Mode
	// Degraded is set when the clip is silence standing in for failed synthesis.
	Degraded bool
	// Rate is the applied speaking rate; 1 when unchanged.
	Rate float64
	// PadSeconds is silence added beyond the baseline.
	PadSeconds float64
	Strategy   string
	Chunks     int
}

// Options bound the adapter's adjustments and retries.
type Options struct {
	WorkDir         string
	OutputDir       string
	ChunkLimit      int
	MaxRetries      int
	Backoff         time.Duration
	AcceptWindow    float64
	Tolerance       float64
	MaxSpeedup      float64
	MaxPausePerMark float64
	Voice           string
	Language        string
	Volume          float64
	SampleRate      int
}

// OptionsFromConfig reads adapter options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WorkDir:         cfg.Paths.WorkDir,
		OutputDir:       filepath.Join(cfg.Paths.WorkDir, "narration"),
		ChunkLimit:      cfg.Speech.ChunkLimit,
		MaxRetries:      cfg.Speech.MaxRetries,
		Backoff:         time.Duration(cfg.Speech.RetryBackoffMS) * time.Millisecond,
		AcceptWindow:    cfg.Reconcile.AcceptWindow,
		Tolerance:       cfg.Reconcile.Tolerance,
		MaxSpeedup:      cfg.Reconcile.MaxSpeedup,
		MaxPausePerMark: cfg.Reconcile.MaxPausePerMark,
		Voice:           cfg.Speech.Voice,
		Language:        cfg.Speech.Language,
		Volume:          cfg.Speech.Volume,
		SampleRate:      cfg.Mixer.SampleRate,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkLimit <= 0 {
		o.ChunkLimit = DefaultChunkLimit
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.AcceptWindow <= 0 {
		o.AcceptWindow = 0.5
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 0.05
	}
	if o.MaxSpeedup < 1 {
		o.MaxSpeedup = 1.25
	}
	if o.MaxPausePerMark <= 0 {
		o.MaxPausePerMark = 0.8
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 48000
	}
	return o
}

// Adapter reconciles narration length against a target duration.
type Adapter struct {
	provider    speech.Provider
	strategy    Strategy
	rateCapable bool
	ffmpeg      ffmpeg.Runner
	prober      ffprobe.Prober
	opts        Options
	logger      *slog.Logger
	sleep       func(context.Context, time.Duration) error
}

// New builds an adapter. caps comes from speech.Discover and fixes the
// strategy for the adapter's lifetime.
func New(provider speech.Provider, caps speech.Capabilities, markupEnabled bool, runner ffmpeg.Runner, prober ffprobe.Prober, opts Options, logger *slog.Logger) *Adapter {
	opts = opts.withDefaults()
	if caps.MaxChars > 0 && caps.MaxChars < opts.ChunkLimit {
		opts.ChunkLimit = caps.MaxChars
	}
	if provider == nil {
		provider = speech.Unavailable{}
	}
	return &Adapter{
		provider:    provider,
		strategy:    SelectStrategy(caps.Markup, markupEnabled),
		rateCapable: caps.Rate,
		ffmpeg:      runner,
		prober:      prober,
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "narration"),
		sleep:       sleepContext,
	}
}

// Strategy returns the selected pacing strategy.
func (a *Adapter) Strategy() Strategy {
	return a.strategy
}

// Synthesize writes a clip for text into the configured output directory.
func (a *Adapter) Synthesize(ctx context.Context, text string, target float64) (Artifact, error) {
	if strings.TrimSpace(a.opts.OutputDir) == "" {
		return Artifact{}, services.Wrap(services.ErrConfiguration, "narration", "synthesize", "output directory not configured", nil)
	}
	return a.SynthesizeTo(ctx, text, target, filepath.Join(a.opts.OutputDir, uuid.NewString()+".wav"))
}

// SynthesizeTo writes a clip for text to out. It returns an error only when
// the context ends, the inputs are unusable, or even a silence clip cannot
// be produced.
func (a *Adapter) SynthesizeTo(ctx context.Context, text string, target float64, out string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if math.IsNaN(target) || target <= 0 {
		return Artifact{}, services.Wrap(services.ErrValidation, "narration", "synthesize", fmt.Sprintf("invalid target duration %v", target), nil)
	}
	if strings.TrimSpace(out) == "" {
		return Artifact{}, services.Wrap(services.ErrConfiguration, "narration", "synthesize", "output path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return Artifact{}, services.Wrap(services.ErrConfiguration, "narration", "synthesize", "create output directory", err)
	}
	logger := logging.WithContext(ctx, a.logger)

	chunks := Split(text, a.opts.ChunkLimit)
	if len(chunks) == 0 {
		art, err := a.silence(ctx, out, target)
		art.Degraded = false
		return art, err
	}

	tmp, err := os.MkdirTemp(a.opts.WorkDir, "narration-")
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrConfiguration, "narration", "synthesize", "create temp dir", err)
	}
	defer os.RemoveAll(tmp)

	base, err := a.render(ctx, tmp, "baseline", chunks, Pauses{}, 0)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Artifact{}, ctxErr
		}
		a.logFallback(logger, "baseline synthesis failed; substituting silence", err)
		return a.silence(ctx, out, target)
	}
	art := Artifact{Strategy: a.strategy.Name(), Chunks: len(chunks), Rate: 1}

	diff := target - base.duration
	switch {
	case math.Abs(diff) < a.opts.AcceptWindow:
		art.Mode = ModeBaseline
		return a.finish(ctx, art, base.path, out, target)
	case diff > 0:
		return a.padPath(ctx, logger, tmp, chunks, base, target, out, art)
	default:
		return a.speedPath(ctx, logger, tmp, chunks, base, target, out, art)
	}
}

func (a *Adapter) padPath(ctx context.Context, logger *slog.Logger, tmp string, chunks []string, base clip, target float64, out string, art Artifact) (Artifact, error) {
	art.Mode = ModePadded
	source := base
	if a.strategy.Paced() {
		deficit := target - base.duration
		joined := strings.Join(chunks, " ")
		pauses := PlanPauses(joined, deficit, a.opts.MaxPausePerMark)
		if pauses.PerMark > 0 {
			paced, err := a.render(ctx, tmp, "paced", chunks, pauses, 0)
			switch {
			case err == nil:
				source = paced
			case ctx.Err() != nil:
				return Artifact{}, ctx.Err()
			default:
				a.logFallback(logger, "paced synthesis failed; padding baseline with silence", err)
			}
		}
	}
	// Pause time the paced render actually gained; a top-up below adds the rest.
	art.PadSeconds = math.Max(source.duration-base.duration, 0)

	if target-source.duration <= a.opts.Tolerance {
		return a.finish(ctx, art, source.path, out, target)
	}
	padded := filepath.Join(tmp, "padded.wav")
	if err := a.ffmpeg.Run(ctx, ffmpeg.PadArgs(source.path, padded, target)...); err != nil {
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		a.logFallback(logger, "silence top-up failed; keeping shorter narration", err)
		return a.finish(ctx, art, source.path, out, target)
	}
	art.PadSeconds = target - base.duration
	return a.finish(ctx, art, padded, out, target)
}

func (a *Adapter) speedPath(ctx context.Context, logger *slog.Logger, tmp string, chunks []string, base clip, target float64, out string, art Artifact) (Artifact, error) {
	rate := math.Min(base.duration/target, a.opts.MaxSpeedup)
	art.Mode = ModeSpeed
	art.Rate = rate

	if a.rateCapable {
		fast, err := a.render(ctx, tmp, "rate", chunks, Pauses{}, rate)
		switch {
		case err == nil:
			return a.finish(ctx, art, fast.path, out, target)
		case ctx.Err() != nil:
			return Artifact{}, ctx.Err()
		default:
			a.logFallback(logger, "rate synthesis failed; time-stretching baseline", err)
		}
	}

	stretched := filepath.Join(tmp, "atempo.wav")
	if err := a.ffmpeg.Run(ctx, ffmpeg.AtempoArgs(base.path, stretched, rate)...); err != nil {
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		a.logFallback(logger, "time-stretch failed; keeping baseline pacing", err)
		art.Mode = ModeBaseline
		art.Rate = 1
		return a.finish(ctx, art, base.path, out, target)
	}
	return a.finish(ctx, art, stretched, out, target)
}

// finish moves src to out and records the measured duration. Output that
// fails the probe is replaced by silence.
func (a *Adapter) finish(ctx context.Context, art Artifact, src, out string, target float64) (Artifact, error) {
	if err := fileutil.MoveFile(src, out); err != nil {
		return Artifact{}, fmt.Errorf("narration: place output: %w", err)
	}
	duration, err := ffprobe.Duration(ctx, a.prober, out)
	if err != nil {
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		a.logFallback(logging.WithContext(ctx, a.logger), "final narration failed validation; substituting silence", err)
		return a.silence(ctx, out, target)
	}
	art.Path = out
	art.Duration = duration
	return art, nil
}

// silence writes a silence clip of target seconds.
func (a *Adapter) silence(ctx context.Context, out string, target float64) (Artifact, error) {
	if err := a.ffmpeg.Run(ctx, ffmpeg.SilenceArgs(out, target, a.opts.SampleRate)...); err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Path:     out,
		Duration: target,
		Mode:     ModeSilence,
		Degraded: true,
		Rate:     1,
		Strategy: a.strategy.Name(),
	}, nil
}

func (a *Adapter) logFallback(logger *slog.Logger, msg string, err error) {
	logging.WarnWithContext(logger, msg, "narration_fallback",
		logging.Error(err),
		logging.String("strategy", a.strategy.Name()),
		logging.String(logging.FieldErrorHint, "check the speech provider and ffmpeg logs"),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
