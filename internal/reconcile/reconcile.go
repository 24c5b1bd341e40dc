package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/media/ffprobe"
	"montage/internal/narration"
	"montage/internal/services"
	"montage/internal/stretch"
)

// DefaultTolerance is the largest allowed audio/video length difference.
const DefaultTolerance = 0.05

// Narrator synthesizes narration to a target length.
type Narrator interface {
	SynthesizeTo(ctx context.Context, text string, target float64, out string) (narration.Artifact, error)
}

// VideoStretcher fits a clip to a target length.
type VideoStretcher interface {
	Reconcile(ctx context.Context, in stretch.Input, target float64) (stretch.Result, error)
}

// Audio is narration already rendered for a segment.
type Audio struct {
	Path     string
	Duration float64
}

// Input is one segment to reconcile.
type Input struct {
	ID      string
	Index   int
	Text    string
	Video   string
	Start   float64
	Natural float64
	// Audio, when set, is reused instead of synthesizing.
	Audio   *Audio
	Emotion string
	Cue     string
}

// Distortion records the adjustments applied to reach parity.
type Distortion struct {
	SpeedFactor   float64
	SpeechRate    float64
	PadSeconds    float64
	FreezeSeconds float64
}

// Segment is a reconciled segment.
type Segment struct {
	SegmentID          string
	Index              int
	FinalVideoDuration float64
	FinalAudioDuration float64
	VideoPath          string
	AudioPath          string
	Distortion         Distortion
	NarrationMode      narration.Mode
	VideoAction        stretch.Action
	Degraded           bool
	Text               string
	Emotion            string
	Cue                string
}

// Options configure the engine.
type Options struct {
	Tolerance   float64
	Parallelism int
}

// OptionsFromConfig reads engine options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{Tolerance: cfg.Reconcile.Tolerance, Parallelism: cfg.Reconcile.Parallelism}
}

// Engine runs narration and video reconciliation per segment.
type Engine struct {
	narrator  Narrator
	stretcher VideoStretcher
	ffmpeg    ffmpeg.Runner
	prober    ffprobe.Prober
	opts      Options
	logger    *slog.Logger
}

// New builds an engine.
func New(narrator Narrator, stretcher VideoStretcher, runner ffmpeg.Runner, prober ffprobe.Prober, opts Options, logger *slog.Logger) *Engine {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Engine{
		narrator:  narrator,
		stretcher: stretcher,
		ffmpeg:    runner,
		prober:    prober,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Narrate synthesizes the segment's narration against its natural video
// length and writes it to out.
func (e *Engine) Narrate(ctx context.Context, in Input, out string) (narration.Artifact, error) {
	ctx = services.WithSegmentID(ctx, in.ID)
	target := in.Natural
	if target <= 0 {
		target = defaultNatural
	}
	return e.narrator.SynthesizeTo(ctx, in.Text, target, out)
}

const defaultNatural = 5.0

// Segment reconciles one segment into dir.
func (e *Engine) Segment(ctx context.Context, in Input, dir string) (Segment, error) {
	ctx = services.WithSegmentID(ctx, in.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Segment{}, services.Wrap(services.ErrConfiguration, "reconcile", "segment", "create segment dir", err)
	}
	base := fmt.Sprintf("%03d", in.Index)

	out := Segment{
		SegmentID: in.ID,
		Index:     in.Index,
		Text:      in.Text,
		Emotion:   in.Emotion,
		Cue:       in.Cue,
	}

	audio, err := e.audioFor(ctx, in, filepath.Join(dir, base+"-narration.wav"), &out)
	if err != nil {
		return Segment{}, err
	}

	video, err := e.stretcher.Reconcile(ctx, stretch.Input{
		Path:     in.Video,
		Start:    in.Start,
		Duration: in.Natural,
		Output:   filepath.Join(dir, base+"-video.mp4"),
	}, audio.Duration)
	if err != nil {
		return Segment{}, err
	}
	out.VideoPath = video.Path
	out.FinalVideoDuration = video.Duration
	out.VideoAction = video.Plan.Action
	out.Distortion.SpeedFactor = video.Plan.SpeedFactor
	out.Distortion.FreezeSeconds = video.Plan.FreezeSeconds
	out.Degraded = out.Degraded || video.Degraded

	out.AudioPath = audio.Path
	out.FinalAudioDuration = audio.Duration
	if math.Abs(out.FinalVideoDuration-out.FinalAudioDuration) > e.opts.Tolerance {
		if err := e.fitAudio(ctx, &out, filepath.Join(dir, base+"-narration-fit.wav")); err != nil {
			return Segment{}, err
		}
	}
	return out, nil
}

// audioFor returns cached narration when it is still on disk, otherwise
// synthesizes it.
func (e *Engine) audioFor(ctx context.Context, in Input, path string, out *Segment) (Audio, error) {
	if in.Audio != nil && in.Audio.Path != "" && in.Audio.Duration > 0 {
		if _, err := os.Stat(in.Audio.Path); err == nil {
			out.NarrationMode = "cached"
			out.Distortion.SpeechRate = 1
			return *in.Audio, nil
		}
		logging.WithContext(ctx, e.logger).Info("cached narration missing; synthesizing again",
			logging.String("audio_path", in.Audio.Path),
		)
	}
	art, err := e.Narrate(ctx, in, path)
	if err != nil {
		return Audio{}, err
	}
	out.NarrationMode = art.Mode
	out.Distortion.SpeechRate = art.Rate
	out.Distortion.PadSeconds = art.PadSeconds
	out.Degraded = art.Degraded
	return Audio{Path: art.Path, Duration: art.Duration}, nil
}

// fitAudio pads or cuts the narration to the rendered video length, for the
// frame rounding a stretched or placeholder clip can introduce.
func (e *Engine) fitAudio(ctx context.Context, seg *Segment, out string) error {
	if err := e.ffmpeg.Run(ctx, ffmpeg.PadArgs(seg.AudioPath, out, seg.FinalVideoDuration)...); err != nil {
		return err
	}
	got, err := ffprobe.Duration(ctx, e.prober, out)
	if err != nil {
		return services.Wrap(services.ErrMediaValidation, "reconcile", "fit audio", seg.SegmentID, err)
	}
	logging.WithContext(ctx, e.logger).Debug("narration fitted to video",
		logging.Float64("video_seconds", seg.FinalVideoDuration),
		logging.Float64("audio_seconds_before", seg.FinalAudioDuration),
		logging.Float64("audio_seconds_after", got),
	)
	seg.AudioPath = out
	seg.FinalAudioDuration = got
	return nil
}

// All reconciles every input concurrently and returns segments in input
// order.
func (e *Engine) All(ctx context.Context, inputs []Input, dir string) ([]Segment, error) {
	results := make([]Segment, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, in := range inputs {
		g.Go(func() error {
			seg, err := e.Segment(gctx, in, dir)
			if err != nil {
				return fmt.Errorf("segment %d: %w", in.Index, err)
			}
			results[i] = seg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CheckParity reports the first segment whose durations differ by more
// than tolerance.
func CheckParity(segments []Segment, tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	for _, seg := range segments {
		if d := math.Abs(seg.FinalVideoDuration - seg.FinalAudioDuration); d > tolerance {
			return services.Wrap(services.ErrMediaValidation, "reconcile", "parity",
				fmt.Sprintf("segment %s differs by %.3fs", seg.SegmentID, d), nil)
		}
	}
	return nil
}
