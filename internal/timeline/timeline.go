package timeline

import (
	"montage/internal/config"
	"montage/internal/reconcile"
)

// Track names a layer a block occupies.
type Track string

const (
	TrackVideo     Track = "video"
	TrackNarration Track = "narration"
	TrackSubtitle  Track = "subtitle"
)

// Kind distinguishes cards from segments.
type Kind string

const (
	KindIntro   Kind = "intro"
	KindSegment Kind = "segment"
	KindOutro   Kind = "outro"
)

// Block is one contiguous span of the output.
type Block struct {
	Kind     Kind
	Start    float64
	Duration float64
	Tracks   []Track
	// Segment is set for KindSegment blocks.
	Segment *reconcile.Segment
	// Card is set for intro and outro blocks.
	Card     *Card
	Subtitle *Subtitle
}

// End returns the offset where the block stops.
func (b Block) End() float64 {
	return b.Start + b.Duration
}

// Timeline is the composed output layout.
type Timeline struct {
	Blocks []Block
	Total  float64
}

// Segments returns the segment blocks in order.
func (t Timeline) Segments() []Block {
	out := make([]Block, 0, len(t.Blocks))
	for _, b := range t.Blocks {
		if b.Kind == KindSegment {
			out = append(out, b)
		}
	}
	return out
}

// Subtitles returns every subtitle on the timeline.
func (t Timeline) Subtitles() []Subtitle {
	var out []Subtitle
	for _, b := range t.Blocks {
		if b.Subtitle != nil {
			out = append(out, *b.Subtitle)
		}
	}
	return out
}

// CardSlot configures an intro or outro card.
type CardSlot struct {
	Enabled bool
	Seconds float64
	Copy    Copy
	Color   string
	// Fallback marks copy built locally after the copy writer failed.
	Fallback bool
}

// CardSlotsFromConfig returns intro and outro slots without copy.
func CardSlotsFromConfig(cfg *config.Config) (CardSlot, CardSlot) {
	intro := CardSlot{Enabled: cfg.Render.IntroEnabled, Seconds: cfg.Render.IntroSeconds, Color: cfg.Render.CardColor}
	outro := CardSlot{Enabled: cfg.Render.OutroEnabled, Seconds: cfg.Render.OutroSeconds, Color: cfg.Render.CardColor}
	return intro, outro
}

// Compose concatenates intro, segments in order and outro. Each block starts
// where the previous one ends.
func Compose(segments []reconcile.Segment, intro, outro CardSlot, subs SubtitleOptions) Timeline {
	var (
		tl     Timeline
		offset float64
	)
	if intro.Enabled && intro.Seconds > 0 {
		tl.Blocks = append(tl.Blocks, cardBlock(KindIntro, offset, intro))
		offset += intro.Seconds
	}
	for i := range segments {
		seg := segments[i]
		block := Block{
			Kind:     KindSegment,
			Start:    offset,
			Duration: seg.FinalVideoDuration,
			Tracks:   []Track{TrackVideo, TrackNarration},
			Segment:  &seg,
		}
		if sub, ok := subs.For(seg.Text, block.Start, block.Duration); ok {
			block.Subtitle = &sub
			block.Tracks = append(block.Tracks, TrackSubtitle)
		}
		tl.Blocks = append(tl.Blocks, block)
		offset += seg.FinalVideoDuration
	}
	if outro.Enabled && outro.Seconds > 0 {
		tl.Blocks = append(tl.Blocks, cardBlock(KindOutro, offset, outro))
		offset += outro.Seconds
	}
	tl.Total = offset
	return tl
}

func cardBlock(kind Kind, start float64, slot CardSlot) Block {
	return Block{
		Kind:     kind,
		Start:    start,
		Duration: slot.Seconds,
		Tracks:   []Track{TrackVideo},
		Card: &Card{
			Copy:     slot.Copy,
			Color:    slot.Color,
			Fallback: slot.Fallback,
		},
	}
}
