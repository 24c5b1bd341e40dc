package stretch

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/testsupport"
)

func newStretcher(t *testing.T, opts Options) (*Stretcher, *testsupport.FakeMedia, string) {
	t.Helper()
	media := testsupport.NewFakeMedia()
	opts.Encoding = ffmpeg.Encoding{Width: 1080, Height: 1920, FPS: 30}
	return New(media, media, opts, logging.NewNop()), media, t.TempDir()
}

func TestReconcileScenarios(t *testing.T) {
	tests := []struct {
		name    string
		natural float64
		target  float64
		action  Action
	}{
		{"trim no-op", 8.0, 8.0, ActionTrim},
		{"trim", 5.0, 4.2, ActionTrim},
		{"capped speed-up residual", 5.0, 5.6, ActionSlowMotion},
		{"slow-motion boundary", 2.0, 2.6, ActionSlowMotion},
		{"freeze", 3.0, 6.0, ActionSlowFreeze},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, dir := newStretcher(t, Options{})
			src := testsupport.WriteMedia(t, filepath.Join(dir, "src.mp4"), "video", tt.natural)

			res, err := s.Reconcile(context.Background(), Input{Path: src, Output: filepath.Join(dir, "out.mp4")}, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.action, res.Plan.Action)
			assert.False(t, res.Degraded)
			assert.InDelta(t, tt.target, res.Duration, 0.05)
			assert.GreaterOrEqual(t, res.Plan.SpeedFactor, 0.77)
		})
	}
}

func TestReconcileUsesSpan(t *testing.T) {
	s, media, dir := newStretcher(t, Options{})
	src := testsupport.WriteMedia(t, filepath.Join(dir, "src.mp4"), "video", 20)

	res, err := s.Reconcile(context.Background(), Input{Path: src, Start: 12, Duration: 4, Output: filepath.Join(dir, "out.mp4")}, 4.5)
	require.NoError(t, err)
	assert.Equal(t, ActionSlowMotion, res.Plan.Action)
	assert.InDelta(t, 4.0, res.Plan.Natural, 1e-9)

	calls := media.Calls()
	require.Len(t, calls, 1)
	joined := strings.Join(calls[0], " ")
	assert.Contains(t, joined, "-ss 12.000 -t 4.000 -i")
	assert.Contains(t, joined, "setpts=PTS/0.8889")
}

func TestReconcilePlaceholderOnBadInput(t *testing.T) {
	t.Run("undecodable", func(t *testing.T) {
		s, media, dir := newStretcher(t, Options{PlaceholderColor: "navy"})
		src := filepath.Join(dir, "broken.mp4")
		testsupport.WriteFile(t, src, 64)

		res, err := s.Reconcile(context.Background(), Input{Path: src, Output: filepath.Join(dir, "out.mp4")}, 3.5)
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Equal(t, ActionPlaceholder, res.Plan.Action)
		assert.InDelta(t, 3.5, res.Duration, 1e-9)
		assert.Len(t, media.CallsContaining("color=c=navy"), 1)
		dur, kind, err := testsupport.ReadManifest(res.Path)
		require.NoError(t, err)
		assert.Equal(t, "video", kind)
		assert.InDelta(t, 3.5, dur, 1e-3)
	})

	t.Run("missing", func(t *testing.T) {
		s, _, dir := newStretcher(t, Options{})
		res, err := s.Reconcile(context.Background(), Input{Path: filepath.Join(dir, "nope.mp4"), Output: filepath.Join(dir, "out.mp4")}, 2)
		require.NoError(t, err)
		assert.True(t, res.Degraded)
	})

	t.Run("decode failure", func(t *testing.T) {
		s, media, dir := newStretcher(t, Options{})
		src := testsupport.WriteMedia(t, filepath.Join(dir, "src.mp4"), "video", 4)
		media.FailWhen(func(args []string) error {
			if slices.Contains(args, "-vf") {
				return errors.New("decode error")
			}
			return nil
		})
		res, err := s.Reconcile(context.Background(), Input{Path: src, Output: filepath.Join(dir, "out.mp4")}, 2)
		require.NoError(t, err)
		assert.True(t, res.Degraded)
	})
}

func TestReconcileBoomerangLegacy(t *testing.T) {
	opts := Options{Plan: DefaultPlanOptions()}
	opts.Plan.Extension = config.ExtensionBoomerang
	s, media, dir := newStretcher(t, opts)
	media.OverrideDuration(func(args []string) (float64, bool) {
		if slices.Contains(args, "-filter_complex") {
			return 9, true
		}
		return 0, false
	})
	src := testsupport.WriteMedia(t, filepath.Join(dir, "src.mp4"), "video", 2)

	res, err := s.Reconcile(context.Background(), Input{Path: src, Output: filepath.Join(dir, "out.mp4")}, 9)
	require.NoError(t, err)
	assert.Equal(t, ActionBoomerang, res.Plan.Action)
	graph := media.CallsContaining("reverse")
	require.Len(t, graph, 1)
	assert.Contains(t, strings.Join(graph[0], " "), "loop=loop=2:size=120")
}

func TestReconcileErrors(t *testing.T) {
	s, _, dir := newStretcher(t, Options{})
	_, err := s.Reconcile(context.Background(), Input{Path: "x", Output: filepath.Join(dir, "o.mp4")}, 0)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Reconcile(ctx, Input{Path: "x", Output: filepath.Join(dir, "o.mp4")}, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
