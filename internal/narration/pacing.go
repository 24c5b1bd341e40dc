package narration

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MarkClass groups punctuation marks that share a base pause.
type MarkClass int

const (
	MarkNone MarkClass = iota
	MarkComma
	MarkColon
	MarkSemicolon
	MarkExclamation
	MarkQuestion
	MarkPeriod
	MarkEllipsis
)

// BasePause returns the pause a mark gets at normal pacing, in seconds.
func (c MarkClass) BasePause() float64 {
	switch c {
	case MarkComma, MarkColon:
		return 0.18
	case MarkSemicolon:
		return 0.24
	case MarkExclamation:
		return 0.26
	case MarkQuestion:
		return 0.28
	case MarkPeriod:
		return 0.32
	case MarkEllipsis:
		return 0.65
	default:
		return 0
	}
}

// maxBreak is the longest single break most providers accept.
const maxBreak = 10.0

var (
	dotRun      = regexp.MustCompile(`\.{3,}`)
	ellipsisRun = regexp.MustCompile(`…+`)
	blankRun    = regexp.MustCompile(`[ \t]+`)
)

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRun.ReplaceAllString(text, " ")
	text = dotRun.ReplaceAllString(text, "…")
	text = ellipsisRun.ReplaceAllString(text, "…")
	return strings.TrimSpace(text)
}

func classify(runes []rune, i int) MarkClass {
	switch runes[i] {
	case '，', ',', '、':
		return MarkComma
	case '：', ':':
		return MarkColon
	case '；', ';':
		return MarkSemicolon
	case '！', '!':
		return MarkExclamation
	case '？', '?':
		return MarkQuestion
	case '。':
		return MarkPeriod
	case '.':
		// 3.5 and v1.2 are not sentence ends.
		if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			return MarkNone
		}
		return MarkPeriod
	case '…':
		return MarkEllipsis
	default:
		return MarkNone
	}
}

// CountMarks returns the number of pause-bearing punctuation marks in text.
func CountMarks(text string) int {
	runes := []rune(normalizeText(text))
	n := 0
	for i := range runes {
		if classify(runes, i) != MarkNone {
			n++
		}
	}
	return n
}

// Pauses is extra silence added on top of base pacing, in seconds.
type Pauses struct {
	PerMark  float64
	Trailing float64
}

// Total returns the silence these pauses add to text with marks marks.
func (p Pauses) Total(marks int) float64 {
	return p.PerMark*float64(marks) + p.Trailing
}

// PlanPauses spreads deficit across the marks in text, at most maxPerMark
// each, with the remainder as a trailing pause.
func PlanPauses(text string, deficit, maxPerMark float64) Pauses {
	if deficit <= 0 {
		return Pauses{}
	}
	n := CountMarks(text)
	if n == 0 {
		return Pauses{Trailing: deficit}
	}
	per := deficit / float64(n)
	if maxPerMark > 0 && per > maxPerMark {
		per = maxPerMark
	}
	trailing := deficit - per*float64(n)
	if trailing < 1e-9 {
		trailing = 0
	}
	return Pauses{PerMark: per, Trailing: trailing}
}

// BuildSSML renders text as SSML with a break after every mark and sentence
// level prosody. Every break is its class's base pause plus pauses.PerMark.
func BuildSSML(text string, pauses Pauses) string {
	runes := []rune(normalizeText(text))
	var (
		out      strings.Builder
		sentence strings.Builder
	)
	out.WriteString("<speak>")
	for i, r := range runes {
		class := classify(runes, i)
		sentence.WriteString(html.EscapeString(string(r)))
		if class == MarkNone {
			continue
		}
		brk := breakTag(class.BasePause() + pauses.PerMark)
		switch class {
		case MarkExclamation, MarkQuestion, MarkPeriod:
			out.WriteString(prosody(class, strings.TrimSpace(sentence.String())))
			sentence.Reset()
			out.WriteString(brk)
		default:
			sentence.WriteString(brk)
		}
	}
	if rest := strings.TrimSpace(sentence.String()); rest != "" {
		out.WriteString(rest)
	}
	if pauses.Trailing > 0 {
		out.WriteString(breakTag(math.Min(pauses.Trailing, maxBreak)))
	}
	out.WriteString("</speak>")
	return out.String()
}

func prosody(class MarkClass, content string) string {
	switch class {
	case MarkExclamation:
		return `<prosody pitch="+10%" volume="+2dB">` + content + `</prosody>`
	case MarkQuestion:
		return `<prosody pitch="+6%">` + content + `</prosody>`
	default:
		return `<prosody rate="0.98">` + content + `</prosody>`
	}
}

func breakTag(seconds float64) string {
	ms := int(math.Round(seconds * 1000))
	return `<break time="` + strconv.Itoa(ms) + `ms"/>`
}

// Strategy renders a chunk into a provider payload.
type Strategy interface {
	Name() string
	// Paced reports whether pauses are realized inside the speech.
	Paced() bool
	Render(text string, pauses Pauses) (payload string, markup bool)
}

// MarkupStrategy paces speech with SSML breaks.
type MarkupStrategy struct{}

func (MarkupStrategy) Name() string { return "markup" }

func (MarkupStrategy) Paced() bool { return true }

func (MarkupStrategy) Render(text string, pauses Pauses) (string, bool) {
	return BuildSSML(text, pauses), true
}

// PlainStrategy sends text unchanged; pauses become trailing silence.
type PlainStrategy struct{}

func (PlainStrategy) Name() string { return "plain" }

func (PlainStrategy) Paced() bool { return false }

func (s PlainStrategy) Render(text string, _ Pauses) (string, bool) {
	return s.render(text), false
}

func (PlainStrategy) render(text string) string {
	return normalizeText(text)
}

// SelectStrategy picks markup pacing when the provider supports it and it is
// enabled.
func SelectStrategy(markupCapable, enabled bool) Strategy {
	if markupCapable && enabled {
		return MarkupStrategy{}
	}
	return PlainStrategy{}
}
