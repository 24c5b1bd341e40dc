package assets

import (
	"sort"
	"strings"
)

// Styles with known affinities.
const (
	StyleCozy     = "cozy"
	StyleHealing  = "healing"
	StyleStunning = "stunning"
	StyleLuxury   = "luxury"
)

// Criteria describe the run a track is chosen for.
type Criteria struct {
	Style    string
	Keywords []string
	// Emotions counts segments per emotion tag.
	Emotions map[string]int
}

// Scored is a track with its match score.
type Scored struct {
	Track Track
	Score float64
}

// strongEmotions match each other partially.
var strongEmotions = map[string]bool{"stunning": true, "shocking": true}

// Score rates how well t fits c on a 0 to 100 scale: style up to 50, tag
// overlap 10 per keyword up to 30, and dominant emotion 20 (15 partial).
func Score(t Track, c Criteria) float64 {
	style := strings.ToLower(strings.TrimSpace(c.Style))
	trackStyle := strings.ToLower(strings.TrimSpace(t.Style))

	score := 0.0
	switch {
	case trackStyle == style:
		score += 50
	case (style == StyleStunning || style == StyleLuxury) && trackStyle == StyleStunning:
		score += 40
	case (style == StyleCozy || style == StyleHealing) && (trackStyle == StyleCozy || trackStyle == StyleHealing):
		score += 40
	case style == "" || trackStyle == "":
		score += 20
	}

	keywords := make(map[string]bool, len(c.Keywords))
	for _, k := range c.Keywords {
		keywords[strings.ToLower(strings.TrimSpace(k))] = true
	}
	overlap := 0
	seen := make(map[string]bool, len(t.Tags))
	for _, tag := range t.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if keywords[tag] && !seen[tag] {
			overlap++
		}
		seen[tag] = true
	}
	score += float64(min(30, overlap*10))

	if dominant := dominantEmotion(c.Emotions); dominant != "" {
		emotion := strings.ToLower(strings.TrimSpace(t.Emotion))
		switch {
		case emotion == dominant:
			score += 20
		case strongEmotions[dominant] && strongEmotions[emotion]:
			score += 15
		}
	}
	return score
}

// dominantEmotion picks the most frequent tag; ties go to the
// alphabetically first tag.
func dominantEmotion(emotions map[string]int) string {
	best, count := "", 0
	for tag, n := range emotions {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if n > count || (n == count && tag < best) {
			best, count = tag, n
		}
	}
	return best
}

// Rank scores every track, best first. Equal scores keep catalog order.
func (c *Catalog) Rank(criteria Criteria) []Scored {
	if c == nil {
		return nil
	}
	if strings.TrimSpace(criteria.Style) == "" {
		criteria.Style = StyleCozy
	}
	out := make([]Scored, 0, len(c.BGM))
	for _, t := range c.BGM {
		out = append(out, Scored{Track: t, Score: Score(t, criteria)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SelectBGM returns the best track, or false when the catalog has none.
func (c *Catalog) SelectBGM(criteria Criteria) (Scored, bool) {
	ranked := c.Rank(criteria)
	if len(ranked) == 0 {
		return Scored{}, false
	}
	return ranked[0], true
}
