package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/timeline"
)

// ScriptWriter produces the narration script for a run.
type ScriptWriter interface {
	Write(ctx context.Context, brief timeline.Brief, segments []queue.Segment) (string, error)
}

// DescriptionWriter narrates the run description, or the title when the
// description is empty. AlignScript spreads it across the segments.
type DescriptionWriter struct{}

// Write implements ScriptWriter.
func (DescriptionWriter) Write(_ context.Context, brief timeline.Brief, _ []queue.Segment) (string, error) {
	if text := strings.TrimSpace(brief.Description); text != "" {
		return text, nil
	}
	if text := strings.TrimSpace(brief.Title); text != "" {
		return text, nil
	}
	return "", services.Wrap(services.ErrValidation, "script", "write", "run has neither description nor title to narrate", nil)
}

type scriptItem struct {
	SegmentID string `json:"segment_id"`
	AssetID   string `json:"asset_id"`
	Text      string `json:"text"`
	Cue       string `json:"cue"`
}

// AlignScript assigns script text to segments. A JSON array of
// {segment_id|asset_id, text, cue} objects is matched by id, items without
// an id by position. Anything else is split into sentences and spread evenly,
// ceil(sentences/segments) per segment.
func AlignScript(script string, segments []queue.Segment) []queue.SegmentScript {
	if len(segments) == 0 {
		return nil
	}
	if out, ok := alignJSON(script, segments); ok {
		return out
	}
	return alignSentences(script, segments)
}

func alignJSON(script string, segments []queue.Segment) ([]queue.SegmentScript, bool) {
	trimmed := strings.TrimSpace(script)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var items []scriptItem
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, false
	}

	byID := make(map[string]scriptItem)
	byAsset := make(map[string][]scriptItem)
	var positional []scriptItem
	for _, item := range items {
		switch {
		case item.SegmentID != "":
			byID[item.SegmentID] = item
		case item.AssetID != "":
			byAsset[item.AssetID] = append(byAsset[item.AssetID], item)
		default:
			positional = append(positional, item)
		}
	}

	out := make([]queue.SegmentScript, len(segments))
	for i, seg := range segments {
		out[i].SegmentID = seg.ID
		item, ok := byID[seg.ID]
		if !ok && seg.AssetID != "" {
			if queued := byAsset[seg.AssetID]; len(queued) > 0 {
				item, ok = queued[0], true
				byAsset[seg.AssetID] = queued[1:]
			}
		}
		if !ok && i < len(positional) {
			item, ok = positional[i], true
		}
		if ok {
			out[i].Text = strings.TrimSpace(item.Text)
			out[i].Cue = strings.TrimSpace(item.Cue)
		}
	}
	return out, true
}

func alignSentences(script string, segments []queue.Segment) []queue.SegmentScript {
	sentences := SplitSentences(script)
	out := make([]queue.SegmentScript, len(segments))
	perSegment := (len(sentences) + len(segments) - 1) / len(segments)
	for i, seg := range segments {
		out[i].SegmentID = seg.ID
		start := i * perSegment
		end := min((i+1)*perSegment, len(sentences))
		if start < end {
			out[i].Text = strings.TrimSpace(strings.Join(sentences[start:end], ""))
		}
	}
	return out
}

// SplitSentences splits text after each sentence terminator, keeping the
// terminator and any leading whitespace with its sentence. Blank pieces are
// dropped.
func SplitSentences(text string) []string {
	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			out = append(out, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		current.WriteRune(r)
		switch r {
		case '。', '！', '？', '.', '!', '?':
			flush()
		}
	}
	flush()
	return out
}
