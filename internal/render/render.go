package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/media/ffprobe"
	"montage/internal/mixer"
	"montage/internal/services"
	"montage/internal/stretch"
	"montage/internal/timeline"
)

// CueLookup resolves a sound effect cue name to a file.
type CueLookup interface {
	Lookup(cue string) (string, bool)
}

// AudioMixer produces the audio bus for a job.
type AudioMixer interface {
	Mix(ctx context.Context, in mixer.Input) (mixer.AudioBus, error)
}

// Options configure the render job.
type Options struct {
	Encoding ffmpeg.Encoding
	WorkDir  string
	FontFile string
	FontSize int
}

// OptionsFromConfig reads render options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Encoding: stretch.EncodingFromConfig(cfg),
		WorkDir:  cfg.Paths.WorkDir,
		FontFile: cfg.Render.FontFile,
		FontSize: cfg.Subtitles.FontSize,
	}
}

// Job is one render request.
type Job struct {
	Timeline timeline.Timeline
	BGM      *mixer.BGM
	Output   string
}

// Result describes the rendered output.
type Result struct {
	Path     string
	Duration float64
	Bus      mixer.AudioBus
	// Degraded is set when any segment used a fallback or a card used
	// fallback copy.
	Degraded bool
}

// Renderer runs render jobs.
type Renderer struct {
	ffmpeg ffmpeg.Runner
	prober ffprobe.Prober
	mixer  AudioMixer
	cues   CueLookup
	opts   Options
	logger *slog.Logger
}

// New builds a renderer. cues may be nil when no effects library is configured.
func New(runner ffmpeg.Runner, prober ffprobe.Prober, mix AudioMixer, cues CueLookup, opts Options, logger *slog.Logger) *Renderer {
	if opts.FontSize <= 0 {
		opts.FontSize = 64
	}
	return &Renderer{
		ffmpeg: runner,
		prober: prober,
		mixer:  mix,
		cues:   cues,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "render"),
	}
}

// Render produces job.Output.
func (r *Renderer) Render(ctx context.Context, job Job) (Result, error) {
	if len(job.Timeline.Blocks) == 0 || job.Timeline.Total <= 0 {
		return Result{}, services.Wrap(services.ErrValidation, "render", "plan", "timeline is empty", nil)
	}
	if strings.TrimSpace(job.Output) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "render", "plan", "output path required", nil)
	}
	logger := logging.WithContext(ctx, r.logger)

	if err := os.MkdirAll(r.opts.WorkDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("render: create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(r.opts.WorkDir, "render-")
	if err != nil {
		return Result{}, fmt.Errorf("render: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	degraded := false
	clips := make([]string, 0, len(job.Timeline.Blocks))
	for i, block := range job.Timeline.Blocks {
		switch block.Kind {
		case timeline.KindSegment:
			if block.Segment == nil || block.Segment.VideoPath == "" {
				return Result{}, services.Wrap(services.ErrValidation, "render", "plan", fmt.Sprintf("block %d has no segment video", i), nil)
			}
			degraded = degraded || block.Segment.Degraded
			clips = append(clips, block.Segment.VideoPath)
		default:
			card := filepath.Join(dir, fmt.Sprintf("%02d-%s.mp4", i, block.Kind))
			if err := r.card(ctx, card, block); err != nil {
				return Result{}, err
			}
			if block.Card != nil && block.Card.Fallback {
				degraded = true
			}
			clips = append(clips, card)
		}
	}

	list := filepath.Join(dir, "video.txt")
	if err := ffmpeg.WriteConcatList(list, clips); err != nil {
		return Result{}, fmt.Errorf("render: %w", err)
	}
	video := filepath.Join(dir, "video.mp4")
	if err := r.ffmpeg.Run(ctx, ffmpeg.ConcatArgs(list, video)...); err != nil {
		return Result{}, err
	}

	bus, err := r.mixer.Mix(ctx, r.mixInput(job, filepath.Join(dir, "mix.wav")))
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return Result{}, fmt.Errorf("render: create output dir: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(job.Output), ".render-"+filepath.Base(job.Output))
	filter := r.captionFilter(job.Timeline.Subtitles())
	if err := r.ffmpeg.Run(ctx, ffmpeg.MuxArgs(video, bus.Path, tmp, filter, r.opts.Encoding)...); err != nil {
		_ = os.Remove(tmp)
		return Result{}, err
	}
	got, err := ffprobe.Duration(ctx, r.prober, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return Result{}, services.Wrap(services.ErrMediaValidation, "render", "probe", "rendered video failed validation", err)
	}
	if err := os.Rename(tmp, job.Output); err != nil {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("render: move output into place: %w", err)
	}

	logger.Info("video rendered",
		logging.String("output", job.Output),
		logging.Float64("duration_seconds", got),
		logging.Float64("timeline_seconds", job.Timeline.Total),
		logging.Int("blocks", len(job.Timeline.Blocks)),
		logging.Bool("degraded", degraded),
	)
	// The mixed track lived in the temp dir.
	bus.Path = ""
	return Result{Path: job.Output, Duration: got, Bus: bus, Degraded: degraded}, nil
}

func (r *Renderer) mixInput(job Job, out string) mixer.Input {
	in := mixer.Input{BGM: job.BGM, Total: job.Timeline.Total, Output: out}
	for _, block := range job.Timeline.Segments() {
		seg := block.Segment
		if seg.AudioPath != "" {
			in.Narration = append(in.Narration, mixer.Clip{Path: seg.AudioPath, Start: block.Start, Duration: seg.FinalAudioDuration})
		}
		if seg.Cue == "" || r.cues == nil {
			continue
		}
		path, ok := r.cues.Lookup(seg.Cue)
		if !ok {
			r.logger.Debug("sound effect cue not in library", logging.String("cue", seg.Cue))
			continue
		}
		in.Cues = append(in.Cues, mixer.Cue{Name: seg.Cue, Path: path, Start: block.Start, End: block.End()})
	}
	return in
}

func (r *Renderer) card(ctx context.Context, out string, block timeline.Block) error {
	color := ""
	var lines []string
	if block.Card != nil {
		color = block.Card.Color
		lines = block.Card.Copy.Lines()
	}
	return r.ffmpeg.Run(ctx, ffmpeg.CardArgs(out, color, block.Duration, r.cardText(lines), r.opts.Encoding)...)
}

// cardText stacks lines around the vertical center, the first line largest.
func (r *Renderer) cardText(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	step := r.opts.FontSize * 3 / 2
	top := -step * (len(lines) - 1) / 2
	filters := make([]string, 0, len(lines))
	for i, line := range lines {
		size := r.opts.FontSize
		if i == 0 {
			size = r.opts.FontSize * 5 / 4
		}
		offset := top + i*step
		filters = append(filters, r.drawtext(line, size, "(h-text_h)/2"+signed(offset), ""))
	}
	return strings.Join(filters, ",")
}

func (r *Renderer) captionFilter(subs []timeline.Subtitle) string {
	filters := make([]string, 0, len(subs))
	for _, sub := range subs {
		filters = append(filters, r.drawtext(sub.Text, r.opts.FontSize, strconv.Itoa(sub.Y), captionTiming(sub)))
	}
	return strings.Join(filters, ",")
}

func (r *Renderer) drawtext(text string, size int, y, timing string) string {
	var b strings.Builder
	b.WriteString("drawtext=")
	if r.opts.FontFile != "" {
		b.WriteString("fontfile='" + ffmpeg.EscapeText(r.opts.FontFile) + "':")
	}
	b.WriteString("text='" + ffmpeg.EscapeText(text) + "'")
	b.WriteString(":fontcolor=white:fontsize=" + strconv.Itoa(size))
	b.WriteString(":borderw=3:bordercolor=black@0.6")
	b.WriteString(":x=(w-text_w)/2:y=" + y)
	if timing != "" {
		b.WriteString(":" + timing)
	}
	return b.String()
}

// captionTiming shows a caption between its start and end and fades its
// alpha linearly over the fade width at both edges.
func captionTiming(sub timeline.Subtitle) string {
	start, end := ffmpeg.Seconds(sub.Start), ffmpeg.Seconds(sub.End())
	timing := "enable='between(t," + start + "," + end + ")'"
	if sub.Fade <= 0 {
		return timing
	}
	fade := ffmpeg.Seconds(sub.Fade)
	alpha := "if(lt(t," + start + "+" + fade + "),(t-" + start + ")/" + fade +
		",if(gt(t," + end + "-" + fade + "),(" + end + "-t)/" + fade + ",1))"
	return timing + ":alpha='" + alpha + "'"
}

func signed(v int) string {
	if v < 0 {
		return strconv.Itoa(v)
	}
	return "+" + strconv.Itoa(v)
}
