package stretch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/media/ffprobe"
	"montage/internal/services"
)

// Input is one source span to reconcile.
type Input struct {
	// Path is the local source clip.
	Path string
	// Start and Duration select the span; Duration 0 means to the end.
	Start    float64
	Duration float64
	// Output receives the reconciled clip.
	Output string
}

// Result is a reconciled clip.
type Result struct {
	Path     string
	Duration float64
	Plan     Plan
	// Degraded is set when Path is a placeholder.
	Degraded bool
}

// Options configure rendering.
type Options struct {
	Plan             PlanOptions
	Encoding         ffmpeg.Encoding
	PlaceholderColor string
}

// OptionsFromConfig reads stretcher options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Plan:             PlanOptionsFromConfig(cfg),
		Encoding:         EncodingFromConfig(cfg),
		PlaceholderColor: cfg.Render.PlaceholderColor,
	}
}

// EncodingFromConfig returns the shared clip encoding.
func EncodingFromConfig(cfg *config.Config) ffmpeg.Encoding {
	return ffmpeg.Encoding{
		Width:      cfg.Render.Width,
		Height:     cfg.Render.Height,
		FPS:        cfg.Render.FPS,
		VideoCodec: cfg.Render.VideoCodec,
		AudioCodec: cfg.Render.AudioCodec,
		CRF:        cfg.Render.CRF,
		SampleRate: cfg.Mixer.SampleRate,
	}
}

// Stretcher renders plans.
type Stretcher struct {
	ffmpeg ffmpeg.Runner
	prober ffprobe.Prober
	opts   Options
	logger *slog.Logger
}

// New builds a stretcher.
func New(runner ffmpeg.Runner, prober ffprobe.Prober, opts Options, logger *slog.Logger) *Stretcher {
	opts.Plan = opts.Plan.withDefaults()
	if opts.PlaceholderColor == "" {
		opts.PlaceholderColor = "black"
	}
	if opts.Encoding.FPS <= 0 {
		opts.Encoding.FPS = 30
	}
	return &Stretcher{
		ffmpeg: runner,
		prober: prober,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "stretch"),
	}
}

// Reconcile makes the clip exactly target seconds long. Unreadable input
// yields a placeholder; only context cancellation and placeholder failures
// are returned as errors.
func (s *Stretcher) Reconcile(ctx context.Context, in Input, target float64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if math.IsNaN(target) || target <= 0 {
		return Result{}, services.Wrap(services.ErrValidation, "stretch", "reconcile", fmt.Sprintf("invalid target duration %v", target), nil)
	}
	if strings.TrimSpace(in.Output) == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "stretch", "reconcile", "output path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(in.Output), 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "stretch", "reconcile", "create output directory", err)
	}
	logger := logging.WithContext(ctx, s.logger)

	natural, err := s.naturalDuration(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return s.placeholder(ctx, logger, in.Output, target, err)
	}

	plan := MakePlan(natural, target, s.opts.Plan)
	args := s.argsFor(in, plan)
	if err := s.ffmpeg.Run(ctx, args...); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return s.placeholder(ctx, logger, in.Output, target, err)
	}
	got, err := ffprobe.Duration(ctx, s.prober, in.Output)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return s.placeholder(ctx, logger, in.Output, target, err)
	}

	logger.Debug("clip reconciled",
		logging.String("action", string(plan.Action)),
		logging.Float64("natural_seconds", natural),
		logging.Float64("target_seconds", target),
		logging.Float64("speed_factor", plan.SpeedFactor),
		logging.Float64("freeze_seconds", plan.FreezeSeconds),
	)
	return Result{Path: in.Output, Duration: got, Plan: plan}, nil
}

// naturalDuration probes the source and clamps the requested span to it.
func (s *Stretcher) naturalDuration(ctx context.Context, in Input) (float64, error) {
	probed, err := ffprobe.Duration(ctx, s.prober, in.Path)
	if err != nil {
		return 0, err
	}
	available := probed - math.Max(in.Start, 0)
	if available <= 0 {
		return 0, fmt.Errorf("%w: span starts at %.3fs past the end of a %.3fs clip", ffprobe.ErrInvalidMedia, in.Start, probed)
	}
	if in.Duration > 0 && in.Duration < available {
		return in.Duration, nil
	}
	return available, nil
}

func (s *Stretcher) argsFor(in Input, plan Plan) []string {
	enc := s.opts.Encoding
	start := math.Max(in.Start, 0)
	switch plan.Action {
	case ActionTrim:
		return ffmpeg.VideoFilterArgs(in.Path, in.Output, start, plan.Target, "", enc)
	case ActionBoomerang:
		return ffmpeg.FilterComplexArgs(in.Path, in.Output, start, plan.Natural, boomerangGraph(plan, enc), "out", enc)
	default:
		return ffmpeg.VideoFilterArgs(in.Path, in.Output, start, plan.Natural, slowFilter(plan), enc)
	}
}

// slowFilter slows the clip, holds the last frame for the residual and
// trims to the target.
func slowFilter(plan Plan) string {
	parts := []string{"setpts=PTS/" + strconv.FormatFloat(plan.SpeedFactor, 'f', 4, 64)}
	if plan.FreezeSeconds > 0 {
		parts = append(parts, "tpad=stop_mode=clone:stop_duration="+ffmpeg.Seconds(plan.FreezeSeconds))
	}
	parts = append(parts, "trim=duration="+ffmpeg.Seconds(plan.Target), "setpts=PTS-STARTPTS")
	return strings.Join(parts, ",")
}

// boomerangGraph plays the clip forward then reversed, repeats the pair and
// trims to the target.
func boomerangGraph(plan Plan, enc ffmpeg.Encoding) string {
	frames := int(math.Ceil(2 * plan.Natural * float64(enc.FPS)))
	return fmt.Sprintf("[0:v]split=2[fw][bw];[bw]reverse[rv];[fw][rv]concat=n=2:v=1:a=0,loop=loop=%d:size=%d,trim=duration=%s,setpts=PTS-STARTPTS,%s[out]",
		plan.Loops-1, frames, ffmpeg.Seconds(plan.Target), enc.ScaleFilter())
}

func (s *Stretcher) placeholder(ctx context.Context, logger *slog.Logger, out string, target float64, cause error) (Result, error) {
	logging.WarnWithContext(logger, "video clip unusable; rendering placeholder", "stretch_placeholder",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check the source clip decodes with ffprobe"),
		logging.String(logging.FieldImpact, "segment shows a solid color card"),
	)
	if err := s.ffmpeg.Run(ctx, ffmpeg.ColorArgs(out, s.opts.PlaceholderColor, target, s.opts.Encoding)...); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "stretch", "placeholder", "render placeholder", err)
	}
	return Result{
		Path:     out,
		Duration: target,
		Plan:     Plan{Action: ActionPlaceholder, Target: target, SpeedFactor: 1},
		Degraded: true,
	}, nil
}
