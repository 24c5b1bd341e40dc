package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/reconcile"
)

type reconcileReport struct {
	Video              string  `json:"video"`
	NaturalDuration    float64 `json:"naturalDuration"`
	FinalVideoDuration float64 `json:"finalVideoDuration"`
	FinalAudioDuration float64 `json:"finalAudioDuration"`
	VideoPath          string  `json:"videoPath"`
	AudioPath          string  `json:"audioPath"`
	NarrationMode      string  `json:"narrationMode"`
	VideoAction        string  `json:"videoAction"`
	SpeedFactor        float64 `json:"speedFactor"`
	SpeechRate         float64 `json:"speechRate"`
	PadSeconds         float64 `json:"padSeconds"`
	FreezeSeconds      float64 `json:"freezeSeconds"`
	Degraded           bool    `json:"degraded"`
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var text string
	var start float64
	var duration float64
	var outDir string
	var emotion string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile VIDEO --text NARRATION",
		Short: "Reconcile one clip span against synthesized narration",
		Long: "Synthesizes the narration with the configured speech provider, then fits\n" +
			"audio and video to a common duration and writes both artifacts to --out.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("--text is required")
			}
			video, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			if start < 0 {
				return errors.New("--start must not be negative")
			}

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      "console",
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			svc, err := pipeline.NewServices(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			natural := duration
			if natural <= 0 {
				probe, err := svc.Prober.Inspect(cmd.Context(), video)
				if err != nil {
					return fmt.Errorf("probe %s: %w", video, err)
				}
				natural = probe.DurationSeconds() - start
			}
			if natural <= 0 {
				return fmt.Errorf("clip span starting at %.2fs has no duration", start)
			}

			dir := strings.TrimSpace(outDir)
			if dir == "" {
				dir = filepath.Join(cfg.Paths.WorkDir, "reconcile-"+uuid.NewString()[:8])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			seg, err := svc.Engine.Segment(cmd.Context(), reconcile.Input{
				ID:      "adhoc",
				Text:    text,
				Video:   video,
				Start:   start,
				Natural: natural,
				Emotion: emotion,
			}, dir)
			if err != nil {
				return err
			}

			report := reconcileReport{
				Video:              video,
				NaturalDuration:    natural,
				FinalVideoDuration: seg.FinalVideoDuration,
				FinalAudioDuration: seg.FinalAudioDuration,
				VideoPath:          seg.VideoPath,
				AudioPath:          seg.AudioPath,
				NarrationMode:      string(seg.NarrationMode),
				VideoAction:        string(seg.VideoAction),
				SpeedFactor:        seg.Distortion.SpeedFactor,
				SpeechRate:         seg.Distortion.SpeechRate,
				PadSeconds:         seg.Distortion.PadSeconds,
				FreezeSeconds:      seg.Distortion.FreezeSeconds,
				Degraded:           seg.Degraded,
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
				{"Natural", formatSeconds(report.NaturalDuration)},
				{"Video", formatSeconds(report.FinalVideoDuration) + " (" + orDash(report.VideoAction) + ")"},
				{"Audio", formatSeconds(report.FinalAudioDuration) + " (" + orDash(report.NarrationMode) + ")"},
				{"Speed factor", fmt.Sprintf("%.3f", report.SpeedFactor)},
				{"Speech rate", fmt.Sprintf("%.3f", report.SpeechRate)},
				{"Padding", formatSeconds(report.PadSeconds)},
				{"Freeze", formatSeconds(report.FreezeSeconds)},
				{"Degraded", yesNo(report.Degraded)},
				{"Video file", report.VideoPath},
				{"Audio file", report.AudioPath},
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Narration text to synthesize")
	cmd.Flags().Float64Var(&start, "start", 0, "Span start within the clip in seconds")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Span duration in seconds (defaults to the rest of the clip)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory for the reconciled artifacts")
	cmd.Flags().StringVar(&emotion, "emotion", "", "Emotion tag passed to the speech provider")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
