package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"montage/internal/assets"
	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/mixer"
	"montage/internal/queue"
	"montage/internal/reconcile"
	"montage/internal/render"
	"montage/internal/services"
	"montage/internal/timeline"
)

// Handler runs one stage for a run. It reads the run's persisted inputs,
// writes its outputs and reports how the run should move on.
type Handler interface {
	Stage() queue.Stage
	Handle(ctx context.Context, run *queue.Run) Result
}

// Handlers returns the analyze, script, audio and render handlers in dispatch
// order.
func Handlers(svc *Services) []Handler {
	return []Handler{
		&analyzeHandler{svc: svc, logger: logging.NewComponentLogger(svc.Logger, "pipeline-analyze")},
		&scriptHandler{svc: svc, logger: logging.NewComponentLogger(svc.Logger, "pipeline-script")},
		&audioHandler{svc: svc, logger: logging.NewComponentLogger(svc.Logger, "pipeline-audio")},
		&renderHandler{svc: svc, logger: logging.NewComponentLogger(svc.Logger, "pipeline-render")},
	}
}

func briefFor(run *queue.Run) timeline.Brief {
	return timeline.Brief{Title: run.Title, Description: run.Description, Style: run.Style}
}

// workDir creates a scratch directory for one stage execution.
func (s *Services) workDir(runID, prefix string) (string, func(), error) {
	base := s.Config.RunWorkDir(runID)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", nil, services.Wrap(services.ErrConfiguration, "pipeline", "work dir", "create run work dir", err)
	}
	dir, err := os.MkdirTemp(base, prefix)
	if err != nil {
		return "", nil, services.Wrap(services.ErrConfiguration, "pipeline", "work dir", "create stage work dir", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

type analyzeHandler struct {
	svc    *Services
	logger *slog.Logger
}

func (h *analyzeHandler) Stage() queue.Stage { return queue.StageAnalyze }

func (h *analyzeHandler) Handle(ctx context.Context, run *queue.Run) Result {
	logger := logging.WithContext(ctx, h.logger)
	clips, err := h.svc.Store.ListVideoAssets(ctx, run.ID)
	if err != nil {
		return Retry(err)
	}
	if len(clips) == 0 {
		return Fatal(services.Wrap(services.ErrValidation, "analyze", "list assets", "run has no video clips", nil))
	}
	state := AnalyzingState{RunID: run.ID, Assets: clips}

	var segments []queue.Segment
	for _, clip := range clips {
		local, cleanup, err := h.svc.Storage.Get(ctx, clip.Ref)
		if err != nil {
			return Classify(fmt.Errorf("fetch clip %s: %w", clip.ID, err))
		}
		analysis, err := h.svc.Classifier.Classify(ctx, local)
		cleanup()
		if err != nil {
			return Classify(fmt.Errorf("classify clip %s: %w", clip.ID, err))
		}
		spans := CompleteSpans(analysis.Spans, analysis.Duration, SpanEpsilon)
		for _, span := range spans {
			segments = append(segments, queue.Segment{
				AssetID:      clip.ID,
				VideoRef:     clip.Ref,
				StartSeconds: span.Start,
				Duration:     span.End - span.Start,
				EmotionTag:   span.Emotion,
				ShockScore:   span.Shock,
			})
		}
		logger.Debug("clip analyzed",
			logging.String("asset_id", clip.ID),
			logging.Float64("clip_seconds", analysis.Duration),
			logging.Int("spans_in", len(analysis.Spans)),
			logging.Int("spans_out", len(spans)),
		)
	}

	saved, err := h.svc.Store.ReplaceSegments(ctx, run.ID, segments)
	if err != nil {
		return Retry(err)
	}
	logger.Info("analysis complete",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.Int("clips", len(clips)),
		logging.Int("segments", len(saved)),
	)
	return Done(state.Complete(saved))
}

type scriptHandler struct {
	svc    *Services
	logger *slog.Logger
}

func (h *scriptHandler) Stage() queue.Stage { return queue.StageScript }

func (h *scriptHandler) Handle(ctx context.Context, run *queue.Run) Result {
	segments, err := h.svc.Store.ListSegments(ctx, run.ID)
	if err != nil {
		return Retry(err)
	}
	if len(segments) == 0 {
		return Fatal(services.Wrap(services.ErrValidation, "script", "list segments", "run has no segments; analyze it first", nil))
	}
	state := ScriptState{RunID: run.ID, Segments: segments}

	script := strings.TrimSpace(run.ScriptContent)
	source := "provided"
	if script == "" {
		script, err = h.svc.Scripts.Write(ctx, briefFor(run), segments)
		if err != nil {
			return Classify(err)
		}
		source = "generated"
	}
	scripts := AlignScript(script, segments)

	if err := h.svc.Store.SetScript(ctx, run.ID, script); err != nil {
		return Retry(err)
	}
	if err := h.svc.Store.ApplyScript(ctx, run.ID, scripts); err != nil {
		return Retry(err)
	}
	narrated := 0
	for _, s := range scripts {
		if s.Text != "" {
			narrated++
		}
	}
	logging.WithContext(ctx, h.logger).Info("script aligned",
		logging.String(logging.FieldEventType, "script_aligned"),
		logging.String("source", source),
		logging.Int("segments", len(segments)),
		logging.Int("narrated_segments", narrated),
	)
	return Done(state.Complete(script, scripts))
}

type audioHandler struct {
	svc    *Services
	logger *slog.Logger
}

func (h *audioHandler) Stage() queue.Stage { return queue.StageAudio }

func (h *audioHandler) Handle(ctx context.Context, run *queue.Run) Result {
	logger := logging.WithContext(ctx, h.logger)
	segments, err := h.svc.Store.ListSegments(ctx, run.ID)
	if err != nil {
		return Retry(err)
	}
	if len(segments) == 0 {
		return Fatal(services.Wrap(services.ErrValidation, "audio", "list segments", "run has no segments", nil))
	}
	state := AudioState{RunID: run.ID, Script: run.ScriptContent}

	dir, cleanup, err := h.svc.workDir(run.ID, "audio-")
	if err != nil {
		return Classify(err)
	}
	defer cleanup()

	narrations := make([]Narration, len(segments))
	paths := make([]string, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, h.svc.Config.Reconcile.Parallelism))
	for i, seg := range segments {
		g.Go(func() error {
			out := filepath.Join(dir, fmt.Sprintf("%03d.wav", seg.Index))
			art, err := h.svc.Engine.Narrate(gctx, reconcile.Input{
				ID:      seg.ID,
				Index:   seg.Index,
				Text:    seg.NarrationText,
				Natural: seg.Duration,
			}, out)
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg.Index, err)
			}
			key := fmt.Sprintf("runs/%s/narration/%03d.wav", run.ID, seg.Index)
			ref, err := h.svc.Storage.Put(gctx, art.Path, key, "audio/wav")
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg.Index, err)
			}
			if err := h.svc.Store.SetSegmentAudio(gctx, seg.ID, ref, art.Duration); err != nil {
				return err
			}
			paths[i] = art.Path
			narrations[i] = Narration{SegmentID: seg.ID, Ref: ref, Duration: art.Duration, Degraded: art.Degraded}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Classify(err)
	}

	previewURL := h.preview(ctx, logger, run.ID, dir, paths)
	if previewURL != "" {
		if err := h.svc.Store.SetAudioURL(ctx, run.ID, previewURL); err != nil {
			return Retry(err)
		}
	}

	bgmRef := strings.TrimSpace(run.BGMRef)
	if bgmRef == "" {
		if pick, ok := h.svc.Catalog.SelectBGM(bgmCriteria(run, segments)); ok {
			bgmRef = pick.Track.ID
			if err := h.svc.Store.SetBGMRef(ctx, run.ID, bgmRef); err != nil {
				return Retry(err)
			}
			logger.Info("background music selected",
				logging.String(logging.FieldEventType, "bgm_selected"),
				logging.String("track", pick.Track.ID),
				logging.Float64("score", pick.Score),
			)
		}
	}

	degraded := 0
	for _, n := range narrations {
		if n.Degraded {
			degraded++
		}
	}
	logger.Info("narration generated",
		logging.String(logging.FieldEventType, "narration_complete"),
		logging.Int("segments", len(narrations)),
		logging.Int("degraded_segments", degraded),
	)
	return Done(state.Complete(narrations, previewURL, bgmRef))
}

// preview joins the narration clips into one file for review. A failure only
// costs the preview.
func (h *audioHandler) preview(ctx context.Context, logger *slog.Logger, runID, dir string, paths []string) string {
	list := filepath.Join(dir, "preview.txt")
	out := filepath.Join(dir, "preview.wav")
	err := ffmpeg.WriteConcatList(list, paths)
	if err == nil {
		err = h.svc.FFmpeg.Run(ctx, ffmpeg.ConcatReencodeArgs(list, out)...)
	}
	var url string
	if err == nil {
		url, err = h.svc.Storage.Put(ctx, out, fmt.Sprintf("runs/%s/preview.wav", runID), "audio/wav")
	}
	if err != nil {
		logging.WarnWithContext(logger, "narration preview unavailable", "preview_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run has no audio preview"),
		)
		return ""
	}
	return url
}

// bgmCriteria describes the run for music selection: its style, the words of
// its title and description, and how often each emotion was tagged.
func bgmCriteria(run *queue.Run, segments []queue.Segment) assets.Criteria {
	criteria := assets.Criteria{
		Style:    run.Style,
		Keywords: strings.Fields(strings.ToLower(run.Title + " " + run.Description)),
		Emotions: make(map[string]int),
	}
	for _, seg := range segments {
		if tag := strings.TrimSpace(seg.EmotionTag); tag != "" {
			criteria.Emotions[strings.ToLower(tag)]++
		}
	}
	return criteria
}

type renderHandler struct {
	svc    *Services
	logger *slog.Logger
}

func (h *renderHandler) Stage() queue.Stage { return queue.StageRender }

func (h *renderHandler) Handle(ctx context.Context, run *queue.Run) Result {
	logger := logging.WithContext(ctx, h.logger)
	segments, err := h.svc.Store.ListSegments(ctx, run.ID)
	if err != nil {
		return Retry(err)
	}
	if len(segments) == 0 {
		return Fatal(services.Wrap(services.ErrValidation, "render", "list segments", "run has no segments", nil))
	}
	state := RenderingState{RunID: run.ID, PreviewURL: run.AudioURL, BGMRef: run.BGMRef}

	dir, cleanup, err := h.svc.workDir(run.ID, "render-")
	if err != nil {
		return Classify(err)
	}
	defer cleanup()

	var releases []func()
	defer func() {
		for _, release := range releases {
			release()
		}
	}()

	inputs := make([]reconcile.Input, len(segments))
	for i, seg := range segments {
		video, release, err := h.svc.Storage.Get(ctx, seg.VideoRef)
		if err != nil {
			return Classify(fmt.Errorf("fetch clip for segment %d: %w", seg.Index, err))
		}
		releases = append(releases, release)
		inputs[i] = reconcile.Input{
			ID:      seg.ID,
			Index:   seg.Index,
			Text:    seg.NarrationText,
			Video:   video,
			Start:   seg.StartSeconds,
			Natural: seg.Duration,
			Emotion: seg.EmotionTag,
			Cue:     seg.Cue,
		}
		if seg.AudioRef == "" || seg.AudioDuration <= 0 {
			continue
		}
		audio, release, err := h.svc.Storage.Get(ctx, seg.AudioRef)
		if err != nil {
			logger.Info("cached narration unavailable; synthesizing again",
				logging.Int("segment", seg.Index),
				logging.Error(err),
			)
			continue
		}
		releases = append(releases, release)
		inputs[i].Audio = &reconcile.Audio{Path: audio, Duration: seg.AudioDuration}
		state.Narrations = append(state.Narrations, Narration{SegmentID: seg.ID, Ref: seg.AudioRef, Duration: seg.AudioDuration})
	}

	reconciled, err := h.svc.Engine.All(ctx, inputs, filepath.Join(dir, "segments"))
	if err != nil {
		return Classify(err)
	}
	if err := reconcile.CheckParity(reconciled, h.svc.Config.Reconcile.Tolerance); err != nil {
		return Retry(err)
	}

	intro, outro := timeline.CardSlotsFromConfig(h.svc.Config)
	intro, outro = timeline.ResolveCards(ctx, h.svc.Copy, briefFor(run), intro, outro, h.logger)
	tl := timeline.Compose(reconciled, intro, outro, timeline.SubtitleOptionsFromConfig(h.svc.Config))

	bgm, release := h.backgroundMusic(ctx, logger, run.BGMRef)
	if release != nil {
		releases = append(releases, release)
	}

	result, err := h.svc.Renderer.Render(ctx, render.Job{
		Timeline: tl,
		BGM:      bgm,
		Output:   filepath.Join(dir, "final.mp4"),
	})
	if err != nil {
		return Classify(err)
	}
	url, err := h.svc.Storage.Put(ctx, result.Path, fmt.Sprintf("runs/%s/final.mp4", run.ID), "video/mp4")
	if err != nil {
		return Classify(err)
	}
	if err := h.svc.Store.SetFinalVideo(ctx, run.ID, url, result.Degraded); err != nil {
		return Retry(err)
	}
	logger.Info("video rendered",
		logging.String(logging.FieldEventType, "render_complete"),
		logging.Float64("duration_seconds", result.Duration),
		logging.Int("segments", len(reconciled)),
		logging.Bool("degraded", result.Degraded),
		logging.String("video_url", url),
	)
	return Done(state.Complete(url, result.Degraded))
}

// backgroundMusic resolves the run's music reference: a catalog track id or
// a storage reference. Music that cannot be fetched is left out.
func (h *renderHandler) backgroundMusic(ctx context.Context, logger *slog.Logger, ref string) (*mixer.BGM, func()) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	var curve []float64
	source := ref
	if track, ok := h.svc.Catalog.Track(ref); ok {
		source, curve = track.Path, track.Curve
	}
	local, release, err := h.svc.Storage.Get(ctx, source)
	if err != nil {
		logging.WarnWithContext(logger, "background music unavailable; rendering without it", "bgm_skipped",
			logging.String("bgm_ref", ref),
			logging.Error(err),
			logging.String(logging.FieldImpact, "output has no music bed"),
		)
		return nil, nil
	}
	return &mixer.BGM{Path: local, Curve: curve}, release
}
