package timeline

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"montage/internal/logging"
)

// Copy is the text shown on a card.
type Copy struct {
	Headline     string
	Tagline      string
	CallToAction string
}

// Empty reports whether the copy has no text at all.
func (c Copy) Empty() bool {
	return strings.TrimSpace(c.Headline+c.Tagline+c.CallToAction) == ""
}

// Lines returns the non-empty lines top to bottom.
func (c Copy) Lines() []string {
	var out []string
	for _, line := range []string{c.Headline, c.Tagline, c.CallToAction} {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Card is a rendered intro or outro.
type Card struct {
	Copy     Copy
	Color    string
	Fallback bool
}

// Brief describes the run for copy generation.
type Brief struct {
	Title       string
	Description string
	Style       string
}

// CopyWriter produces intro and outro copy.
type CopyWriter interface {
	Cards(ctx context.Context, brief Brief) (intro Copy, outro Copy, err error)
}

// TitleCopyWriter builds copy from the run title and description.
type TitleCopyWriter struct {
	CallToAction string
}

// Cards implements CopyWriter.
func (w TitleCopyWriter) Cards(_ context.Context, brief Brief) (Copy, Copy, error) {
	headline := Headline(brief.Title)
	tagline, _ := ExtractSubtitle(brief.Description, 32)
	cta := strings.TrimSpace(w.CallToAction)
	if cta == "" {
		cta = "Book your visit"
	}
	return Copy{Headline: headline, Tagline: tagline}, Copy{Headline: headline, CallToAction: cta}, nil
}

// Headline title-cases a run title, falling back to a generic one.
func Headline(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return "Untitled"
	}
	return cases.Title(language.Und).String(title)
}

// ResolveCards asks writer for copy and fills slots, substituting title-only
// cards when the writer fails or returns nothing.
func ResolveCards(ctx context.Context, writer CopyWriter, brief Brief, intro, outro CardSlot, logger *slog.Logger) (CardSlot, CardSlot) {
	fallback := Copy{Headline: Headline(brief.Title)}
	if writer == nil {
		writer = TitleCopyWriter{}
	}
	in, out, err := writer.Cards(ctx, brief)
	if err != nil {
		logging.WarnWithContext(logging.NewComponentLogger(logger, "timeline"), "card copy unavailable; using title cards", "card_copy_fallback",
			logging.Error(err),
			logging.String(logging.FieldImpact, "intro and outro show the run title only"),
		)
		in, out = fallback, fallback
		intro.Fallback, outro.Fallback = true, true
	}
	if in.Empty() {
		in, intro.Fallback = fallback, true
	}
	if out.Empty() {
		out, outro.Fallback = fallback, true
	}
	intro.Copy, outro.Copy = in, out
	return intro, outro
}
