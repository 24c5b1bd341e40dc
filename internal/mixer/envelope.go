package mixer

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Knot is one point of a piecewise-linear gain curve.
type Knot struct {
	At   float64
	Gain float64
}

// Envelope is the base background music gain over the timeline.
type Envelope struct {
	Knots []Knot
}

// FlatEnvelope holds gain for the whole timeline.
func FlatEnvelope(gain float64) Envelope {
	return Envelope{Knots: []Knot{{At: 0, Gain: gain}}}
}

// CurveEnvelope spreads an intensity curve of absolute gains over total
// seconds, with knot i at i*total/(len-1). Curves with fewer than two points
// fall back to flat gain.
func CurveEnvelope(curve []float64, gain, total float64) Envelope {
	if len(curve) == 1 {
		return FlatEnvelope(curve[0])
	}
	if len(curve) < 2 || total <= 0 {
		return FlatEnvelope(gain)
	}
	step := total / float64(len(curve)-1)
	knots := make([]Knot, len(curve))
	for i, v := range curve {
		knots[i] = Knot{At: float64(i) * step, Gain: v}
	}
	knots[len(knots)-1].At = total
	return Envelope{Knots: knots}
}

// GainAt returns the interpolated gain at t.
func (e Envelope) GainAt(t float64) float64 {
	if len(e.Knots) == 0 {
		return 0
	}
	if t <= e.Knots[0].At {
		return e.Knots[0].Gain
	}
	last := e.Knots[len(e.Knots)-1]
	if t >= last.At {
		return last.Gain
	}
	i := sort.Search(len(e.Knots), func(i int) bool { return e.Knots[i].At > t })
	a, b := e.Knots[i-1], e.Knots[i]
	if b.At == a.At {
		return b.Gain
	}
	return a.Gain + (b.Gain-a.Gain)*(t-a.At)/(b.At-a.At)
}

// Expression renders the envelope as an ffmpeg expression of t.
func (e Envelope) Expression() string {
	if len(e.Knots) == 0 {
		return "0"
	}
	if len(e.Knots) == 1 {
		return num(e.Knots[0].Gain)
	}
	expr := num(e.Knots[len(e.Knots)-1].Gain)
	for i := len(e.Knots) - 1; i >= 1; i-- {
		a, b := e.Knots[i-1], e.Knots[i]
		var seg string
		if b.At == a.At {
			seg = num(b.Gain)
		} else {
			slope := (b.Gain - a.Gain) / (b.At - a.At)
			seg = num(a.Gain) + "+" + num(slope) + "*(t-" + num(a.At) + ")"
		}
		expr = "if(lt(t," + num(b.At) + ")," + seg + "," + expr + ")"
	}
	return "if(lt(t," + num(e.Knots[0].At) + ")," + num(e.Knots[0].Gain) + "," + expr + ")"
}

// Window is a span where narration plays.
type Window struct {
	Start float64
	End   float64
}

// MergeWindows sorts windows and joins any closer than twice the fade so
// ramps never overlap.
func MergeWindows(windows []Window, fade float64) []Window {
	if len(windows) == 0 {
		return nil
	}
	sorted := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.End > w.Start {
			sorted = append(sorted, w)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	var out []Window
	for _, w := range sorted {
		if n := len(out); n > 0 && w.Start-out[n-1].End < 2*fade {
			out[n-1].End = math.Max(out[n-1].End, w.End)
			continue
		}
		out = append(out, w)
	}
	return out
}

// GainProgram is the base envelope with ducking applied.
type GainProgram struct {
	Base      Envelope
	Windows   []Window
	DuckLevel float64
	Fade      float64
}

// duckAmount is 1 inside a window, ramps linearly to 0 over fade outside
// each edge, and is 0 elsewhere.
func duckAmount(w Window, fade, t float64) float64 {
	if fade <= 0 {
		if t >= w.Start && t <= w.End {
			return 1
		}
		return 0
	}
	rise := clamp((t-(w.Start-fade))/fade, 0, 1)
	fall := clamp(((w.End+fade)-t)/fade, 0, 1)
	return math.Min(rise, fall)
}

// GainAt returns the ducked gain at t.
func (g GainProgram) GainAt(t float64) float64 {
	gain := g.Base.GainAt(t)
	for _, w := range g.Windows {
		gain *= 1 - (1-g.DuckLevel)*duckAmount(w, g.Fade, t)
	}
	return gain
}

// Expression renders the program as an ffmpeg volume expression; it must be
// evaluated per frame.
func (g GainProgram) Expression() string {
	var b strings.Builder
	b.WriteString(g.Base.Expression())
	depth := 1 - g.DuckLevel
	for _, w := range g.Windows {
		b.WriteString("*(1-")
		b.WriteString(num(depth))
		b.WriteString("*")
		if g.Fade <= 0 {
			b.WriteString("between(t," + num(w.Start) + "," + num(w.End) + ")")
		} else {
			b.WriteString("min(clip((t-" + num(w.Start-g.Fade) + ")/" + num(g.Fade) + ",0,1),clip((" + num(w.End+g.Fade) + "-t)/" + num(g.Fade) + ",0,1))")
		}
		b.WriteString(")")
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// num formats v for an ffmpeg expression; negatives are parenthesized so
// they can follow any operator.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" || s == "-0" {
		return "0"
	}
	if strings.HasPrefix(s, "-") {
		return "(" + s + ")"
	}
	return s
}
