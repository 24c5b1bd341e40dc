package timeline

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"montage/internal/config"
)

// Subtitle is a caption shown over a segment.
type Subtitle struct {
	Text     string
	Start    float64
	Duration float64
	Fade     float64
	// Y is the caption baseline in pixels from the top of the frame.
	Y int
}

// End returns when the caption leaves the screen.
func (s Subtitle) End() float64 {
	return s.Start + s.Duration
}

// SubtitleOptions control caption extraction and placement.
type SubtitleOptions struct {
	Enabled          bool
	MaxChars         int
	VerticalFraction float64
	MaxSeconds       float64
	FadeSeconds      float64
	FrameHeight      int
}

// SubtitleOptionsFromConfig reads caption options from configuration.
func SubtitleOptionsFromConfig(cfg *config.Config) SubtitleOptions {
	return SubtitleOptions{
		Enabled:          cfg.Subtitles.Enabled,
		MaxChars:         cfg.Subtitles.MaxChars,
		VerticalFraction: cfg.Subtitles.VerticalFraction,
		MaxSeconds:       cfg.Subtitles.MaxSeconds,
		FadeSeconds:      cfg.Subtitles.FadeSeconds,
		FrameHeight:      cfg.Render.Height,
	}
}

// For builds the caption for a segment starting at start.
func (o SubtitleOptions) For(text string, start, segment float64) (Subtitle, bool) {
	if !o.Enabled || segment <= 0 {
		return Subtitle{}, false
	}
	caption, ok := ExtractSubtitle(text, o.MaxChars)
	if !ok {
		return Subtitle{}, false
	}
	maxSeconds := o.MaxSeconds
	if maxSeconds <= 0 {
		maxSeconds = 2.5
	}
	onScreen := math.Min(maxSeconds, segment)
	fade := math.Min(math.Max(o.FadeSeconds, 0), onScreen/2)
	return Subtitle{
		Text:     caption,
		Start:    start,
		Duration: onScreen,
		Fade:     fade,
		Y:        int(math.Round(o.VerticalFraction * float64(o.FrameHeight))),
	}, true
}

// ExtractSubtitle returns the first clause of text with at least two letters
// or ideographs, cut to maxChars runes with an ellipsis. The clause is taken
// verbatim from text; full-width punctuation only affects where clauses end.
func ExtractSubtitle(text string, maxChars int) (string, bool) {
	for _, clause := range sentences(text) {
		clause = strings.TrimSpace(clause)
		if !validCaption(clause) {
			continue
		}
		return truncate(clause, maxChars), true
	}
	return "", false
}

func sentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	for i, r := range runes {
		if !isTerminator(runes, i, r) {
			continue
		}
		out = append(out, string(runes[start:i]))
		start = i + 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminator(runes []rune, i int, r rune) bool {
	if narrow := width.LookupRune(r).Narrow(); narrow != 0 {
		r = narrow
	}
	switch r {
	case '。', '｡', '!', '?', ';', '\n':
		return true
	case '.':
		return !(i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]))
	default:
		return false
	}
}

func validCaption(clause string) bool {
	letters := 0
	for _, r := range clause {
		if unicode.IsLetter(r) {
			letters++
			if letters >= 2 {
				return true
			}
		}
	}
	return false
}

func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	if maxChars == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:maxChars-1])) + "…"
}
