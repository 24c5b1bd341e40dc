package narration

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

const (
	// DefaultChunkLimit is the provider request cap in units.
	DefaultChunkLimit = 2000
	// hardCutGraphemes bounds pieces of a word that cannot be split on whitespace.
	hardCutGraphemes = 200
)

// clauseBreaks end a clause; the break rune stays with the clause.
const clauseBreaks = "。！？!?…；;，,、\n\r"

// Units measures text the way providers meter requests: ideographs count
// two, everything else one. Markup tags are not counted.
func Units(text string) int {
	total := 0
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case inTag:
		case unicode.Is(unicode.Han, r):
			total += 2
		default:
			total++
		}
	}
	return total
}

// Split breaks text into chunks of at most limit units on clause boundaries.
// Oversized clauses split on whitespace. A single word longer than the limit
// is the one case cut inside a word; pieces end on grapheme cluster
// boundaries so no character is broken.
func Split(text string, limit int) []string {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	if Units(raw) <= limit {
		return []string{raw}
	}

	var (
		chunks  []string
		current string
	)
	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			chunks = append(chunks, s)
		}
		current = ""
	}
	add := func(piece string) {
		if current == "" {
			current = piece
			return
		}
		if Units(current+piece) <= limit {
			current += piece
			return
		}
		flush()
		current = piece
	}

	for _, clause := range clauses(raw) {
		if strings.TrimSpace(clause) == "" {
			continue
		}
		if Units(clause) <= limit {
			add(clause)
			continue
		}
		for _, word := range wordsWithSpace(clause) {
			if Units(word) <= limit {
				add(word)
				continue
			}
			flush()
			for _, piece := range cutGraphemes(strings.TrimSpace(word), pieceGraphemes(limit)) {
				chunks = append(chunks, piece)
			}
		}
	}
	flush()
	return chunks
}

// clauses splits after every clause break.
func clauses(text string) []string {
	var (
		out   []string
		start int
	)
	for i, r := range text {
		if strings.ContainsRune(clauseBreaks, r) {
			end := i + len(string(r))
			out = append(out, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// wordsWithSpace splits on whitespace, keeping each word's leading spaces so
// rejoined chunks read like the source.
func wordsWithSpace(text string) []string {
	var (
		out     []string
		b       strings.Builder
		inSpace bool
	)
	for _, r := range text {
		space := unicode.IsSpace(r)
		if space && !inSpace && b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
		inSpace = space
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func pieceGraphemes(limit int) int {
	// Ideographs meter as two units, so half the limit always fits.
	n := min(hardCutGraphemes, limit/2)
	return max(n, 1)
}

func cutGraphemes(text string, size int) []string {
	var (
		out   []string
		piece strings.Builder
		count int
	)
	emit := func() {
		if s := strings.TrimSpace(piece.String()); s != "" {
			out = append(out, s)
		}
		piece.Reset()
		count = 0
	}
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		piece.WriteString(g.Str())
		count++
		if count == size {
			emit()
		}
	}
	emit()
	return out
}

// halve splits a chunk near its middle on whitespace or a clause break. It
// reports false when no boundary exists.
func halve(text string) (string, string, bool) {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) < 2 {
		return "", "", false
	}
	mid := len(runes) / 2
	best := -1
	for offset := 0; offset < len(runes); offset++ {
		for _, i := range []int{mid - offset, mid + offset} {
			if i <= 0 || i >= len(runes) {
				continue
			}
			if unicode.IsSpace(runes[i]) || strings.ContainsRune(clauseBreaks, runes[i-1]) {
				best = i
				break
			}
		}
		if best >= 0 {
			break
		}
	}
	if best < 0 {
		return "", "", false
	}
	left := strings.TrimSpace(string(runes[:best]))
	right := strings.TrimSpace(string(runes[best:]))
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}
