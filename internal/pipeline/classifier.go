package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"montage/internal/logging"
	"montage/internal/media/ffprobe"
	"montage/internal/queue"
)

// SpanEpsilon is the smallest gap or span the analysis keeps, in seconds.
const SpanEpsilon = 0.05

// Span is one scene found in a clip.
type Span struct {
	Start   float64
	End     float64
	Emotion string
	Shock   int
}

// Analysis is the classifier's view of one clip.
type Analysis struct {
	Duration float64
	Spans    []Span
}

// Classifier splits a clip into scenes.
type Classifier interface {
	Classify(ctx context.Context, path string) (Analysis, error)
}

// WholeClipClassifier treats every clip as a single scene.
type WholeClipClassifier struct {
	Prober ffprobe.Prober
	Logger *slog.Logger
}

// Classify implements Classifier. An unreadable clip falls back to the
// default segment length so the run can still be reviewed.
func (c WholeClipClassifier) Classify(ctx context.Context, path string) (Analysis, error) {
	duration, err := ffprobe.Duration(ctx, c.Prober, path)
	if err != nil || duration <= 0 {
		logger := c.Logger
		if logger == nil {
			logger = logging.NewNop()
		}
		logging.WarnWithContext(logging.WithContext(ctx, logger), "clip duration unavailable; using default length", "analysis_probe_failed",
			logging.String("path", path),
			logging.Float64("default_seconds", queue.DefaultSegmentDuration),
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment length may not match the clip"),
		)
		duration = queue.DefaultSegmentDuration
	}
	return Analysis{Duration: duration, Spans: []Span{{Start: 0, End: duration}}}, nil
}

// CompleteSpans clamps spans to [0, total] and closes gaps and overlaps so the
// result covers the whole clip in order. Spans shorter than eps are dropped.
// When nothing usable remains a single span covers the clip.
func CompleteSpans(spans []Span, total, eps float64) []Span {
	if total <= 0 {
		return nil
	}
	if eps <= 0 {
		eps = SpanEpsilon
	}
	whole := []Span{{Start: 0, End: total}}

	cleaned := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.End <= s.Start {
			continue
		}
		s.Start = clamp(s.Start, 0, total)
		s.End = clamp(s.End, 0, total)
		if s.End <= s.Start {
			continue
		}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return whole
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return cleaned[i].Start < cleaned[j].Start })

	cleaned[0].Start = 0
	for i := 0; i < len(cleaned)-1; i++ {
		cur, next := &cleaned[i], &cleaned[i+1]
		if next.Start > cur.End+eps {
			cur.End = next.Start
		}
		if next.Start < cur.End-eps {
			next.Start = cur.End
		}
		if cur.End <= cur.Start {
			cur.End = min(total, cur.Start+eps)
		}
	}
	cleaned[len(cleaned)-1].End = total

	out := make([]Span, 0, len(cleaned))
	for _, s := range cleaned {
		s.Start = clamp(s.Start, 0, total)
		s.End = clamp(s.End, 0, total)
		if s.End > s.Start+eps {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return whole
	}
	out[0].Start = 0
	out[len(out)-1].End = total
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
