package mixer

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

// Clip is a narration clip placed on the timeline.
type Clip struct {
	Path     string
	Start    float64
	Duration float64
}

// Cue is a sound effect placed at Start and cut at End, the end of the
// segment that owns it.
type Cue struct {
	Name  string
	Path  string
	Start float64
	End   float64
	// Length is the effect's own duration; Mix probes it when zero.
	Length float64
}

// BGM is the background music bed.
type BGM struct {
	Path string
	// Curve is an optional intensity curve; nil means flat gain.
	Curve []float64
}

// Input is everything mixed into one track.
type Input struct {
	Narration []Clip
	BGM       *BGM
	Cues      []Cue
	Total     float64
	Output    string
}

// Track is one layer of the mixed bus.
type Track struct {
	Name     string
	Start    float64
	Duration float64
}

// AudioBus is the mixed output and its layout.
type AudioBus struct {
	Tracks   []Track
	Path     string
	Duration float64
}

// Track returns the named track.
func (b AudioBus) Track(name string) (Track, bool) {
	for _, t := range b.Tracks {
		if t.Name == name {
			return t, true
		}
	}
	return Track{}, false
}

// Options configure gains and output.
type Options struct {
	BGMGain        float64
	DuckEnabled    bool
	DuckLevel      float64
	DuckFade       float64
	SFXEnabled     bool
	SFXVolume      float64
	LoudnessTarget float64
	SampleRate     int
}

// OptionsFromConfig reads mixer options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BGMGain:        cfg.Mixer.BGMGain,
		DuckEnabled:    cfg.Mixer.DuckEnabled,
		DuckLevel:      cfg.Mixer.DuckLevel,
		DuckFade:       cfg.Mixer.DuckFade,
		SFXEnabled:     cfg.Mixer.SFXEnabled,
		SFXVolume:      cfg.Mixer.SFXVolume,
		LoudnessTarget: cfg.Mixer.LoudnessTarget,
		SampleRate:     cfg.Mixer.SampleRate,
	}
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = 48000
	}
	if o.LoudnessTarget == 0 {
		o.LoudnessTarget = -16
	}
	if o.DuckFade < 0 {
		o.DuckFade = 0
	}
	return o
}

// Track names.
const (
	TrackNarration = "narration"
	TrackBGM       = "bgm"
	sfxPrefix      = "sfx:"
)

// MixPlan is a rendered plan.
type MixPlan struct {
	Args    []string
	Bus     AudioBus
	Program *GainProgram
}

// Plan builds the ffmpeg invocation and bus layout for in.
func Plan(in Input, opts Options) (MixPlan, error) {
	opts = opts.withDefaults()
	if in.Total <= 0 || math.IsNaN(in.Total) {
		return MixPlan{}, services.Wrap(services.ErrValidation, "mixer", "plan", "total duration must be positive", nil)
	}
	if strings.TrimSpace(in.Output) == "" {
		return MixPlan{}, services.Wrap(services.ErrValidation, "mixer", "plan", "output path required", nil)
	}

	var (
		args   []string
		graph  []string
		labels []string
		bus    = AudioBus{Path: in.Output, Duration: in.Total}
		inputs int
		plan   MixPlan
	)
	addInput := func(path string, loop bool) int {
		if loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", path)
		inputs++
		return inputs - 1
	}

	var windows []Window
	narrStart, narrDur := 0.0, 0.0
	for i, clip := range in.Narration {
		if clip.Duration <= 0 {
			continue
		}
		dur := math.Min(clip.Duration, in.Total-clip.Start)
		if dur <= 0 {
			continue
		}
		idx := addInput(clip.Path, false)
		label := fmt.Sprintf("n%d", i)
		graph = append(graph, fmt.Sprintf("[%d:a]atrim=duration=%s,adelay=%d:all=1[%s]", idx, ffmpeg.Seconds(dur), ms(clip.Start), label))
		labels = append(labels, label)
		windows = append(windows, Window{Start: clip.Start, End: clip.Start + dur})
		if narrDur == 0 {
			narrStart = clip.Start
		}
		narrDur += dur
	}
	if narrDur > 0 {
		bus.Tracks = append(bus.Tracks, Track{Name: TrackNarration, Start: narrStart, Duration: narrDur})
	}

	if in.BGM != nil && strings.TrimSpace(in.BGM.Path) != "" {
		envelope := FlatEnvelope(opts.BGMGain)
		if len(in.BGM.Curve) > 0 {
			envelope = CurveEnvelope(in.BGM.Curve, opts.BGMGain, in.Total)
		}
		program := GainProgram{Base: envelope, DuckLevel: opts.DuckLevel, Fade: opts.DuckFade}
		if opts.DuckEnabled {
			program.Windows = MergeWindows(windows, opts.DuckFade)
		}
		plan.Program = &program
		idx := addInput(in.BGM.Path, true)
		graph = append(graph, fmt.Sprintf("[%d:a]atrim=duration=%s,volume='%s':eval=frame[bgm]", idx, ffmpeg.Seconds(in.Total), program.Expression()))
		labels = append(labels, "bgm")
		bus.Tracks = append(bus.Tracks, Track{Name: TrackBGM, Start: 0, Duration: in.Total})
	}

	if opts.SFXEnabled {
		for i, cue := range in.Cues {
			end := math.Min(cue.End, in.Total)
			if end <= 0 {
				end = in.Total
			}
			dur := end - cue.Start
			if cue.Length > 0 {
				dur = math.Min(dur, cue.Length)
			}
			if dur <= 0 || cue.Path == "" {
				continue
			}
			idx := addInput(cue.Path, false)
			label := fmt.Sprintf("s%d", i)
			graph = append(graph, fmt.Sprintf("[%d:a]atrim=duration=%s,volume=%s,adelay=%d:all=1[%s]", idx, ffmpeg.Seconds(dur), num(opts.SFXVolume), ms(cue.Start), label))
			labels = append(labels, label)
			bus.Tracks = append(bus.Tracks, Track{Name: sfxPrefix + cue.Name, Start: cue.Start, Duration: dur})
		}
	}

	if len(labels) == 0 {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r="+strconv.Itoa(opts.SampleRate)+":cl=stereo")
		args = append(args, "-t", ffmpeg.Seconds(in.Total), "-c:a", "pcm_s16le", in.Output)
		plan.Args = args
		plan.Bus = bus
		return plan, nil
	}

	var mix strings.Builder
	for _, l := range labels {
		mix.WriteString("[" + l + "]")
	}
	fmt.Fprintf(&mix, "amix=inputs=%d:duration=longest:normalize=0,apad,atrim=duration=%s,loudnorm=I=%s:TP=-1.5:LRA=11[out]",
		len(labels), ffmpeg.Seconds(in.Total), strconv.FormatFloat(opts.LoudnessTarget, 'f', -1, 64))
	graph = append(graph, mix.String())

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "[out]",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-ac", "2",
		"-t", ffmpeg.Seconds(in.Total),
		"-c:a", "pcm_s16le",
		in.Output,
	)
	plan.Args = args
	plan.Bus = bus
	return plan, nil
}

func ms(seconds float64) int {
	return int(math.Round(seconds * 1000))
}

// Mixer runs mix plans.
type Mixer struct {
	ffmpeg ffmpeg.Runner
	prober ffprobe.Prober
	opts   Options
	logger *slog.Logger
}

// New builds a mixer.
func New(runner ffmpeg.Runner, prober ffprobe.Prober, opts Options, logger *slog.Logger) *Mixer {
	return &Mixer{ffmpeg: runner, prober: prober, opts: opts.withDefaults(), logger: logging.NewComponentLogger(logger, "mixer")}
}

// Mix renders in to in.Output. Unreadable music or effects are dropped with a
// warning; narration problems are errors.
func (m *Mixer) Mix(ctx context.Context, in Input) (AudioBus, error) {
	logger := logging.WithContext(ctx, m.logger)
	if err := os.MkdirAll(filepath.Dir(in.Output), 0o755); err != nil {
		return AudioBus{}, fmt.Errorf("mixer: create output dir: %w", err)
	}
	if in.BGM != nil {
		if _, err := ffprobe.Duration(ctx, m.prober, in.BGM.Path); err != nil {
			if ctx.Err() != nil {
				return AudioBus{}, ctx.Err()
			}
			logging.WarnWithContext(logger, "background music unreadable; mixing without it", "bgm_skipped",
				logging.Error(err),
				logging.String("bgm_path", in.BGM.Path),
			)
			in.BGM = nil
		}
	}
	cues := make([]Cue, 0, len(in.Cues))
	for _, cue := range in.Cues {
		if cue.Length <= 0 {
			length, err := ffprobe.Duration(ctx, m.prober, cue.Path)
			if err != nil {
				if ctx.Err() != nil {
					return AudioBus{}, ctx.Err()
				}
				logging.WarnWithContext(logger, "sound effect unreadable; skipping cue", "sfx_skipped",
					logging.Error(err),
					logging.String("cue", cue.Name),
				)
				continue
			}
			cue.Length = length
		}
		cues = append(cues, cue)
	}
	in.Cues = cues

	plan, err := Plan(in, m.opts)
	if err != nil {
		return AudioBus{}, err
	}
	if err := m.ffmpeg.Run(ctx, plan.Args...); err != nil {
		return AudioBus{}, err
	}
	got, err := ffprobe.Duration(ctx, m.prober, in.Output)
	if err != nil {
		return AudioBus{}, services.Wrap(services.ErrMediaValidation, "mixer", "probe", "mixed audio failed validation", err)
	}
	plan.Bus.Duration = got
	logger.Debug("audio mixed",
		logging.Int("tracks", len(plan.Bus.Tracks)),
		logging.Float64("duration_seconds", got),
	)
	return plan.Bus, nil
}
