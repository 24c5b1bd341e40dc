package testsupport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"montage/internal/media/ffprobe"
)

// FakeMedia stands in for both ffmpeg and ffprobe. Every file it writes is a
// small manifest ("dur=<seconds>" and "kind=<audio|video>") and its probe
// reads the manifest back. Output durations follow the inputs and the
// duration-changing filters in the graph.
type FakeMedia struct {
	mu       sync.Mutex
	calls    [][]string
	fail     func(args []string) error
	override func(args []string) (float64, bool)
}

// NewFakeMedia returns an empty fake.
func NewFakeMedia() *FakeMedia {
	return &FakeMedia{}
}

// FailWhen installs a hook that can reject individual invocations.
func (f *FakeMedia) FailWhen(fn func(args []string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

// OverrideDuration installs a hook that decides the output duration for
// graphs the fake cannot interpret.
func (f *FakeMedia) OverrideDuration(fn func(args []string) (float64, bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override = fn
}

// Calls returns a copy of every argument list passed to Run.
func (f *FakeMedia) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// CallsContaining returns the invocations that include token in any argument.
func (f *FakeMedia) CallsContaining(token string) [][]string {
	var out [][]string
	for _, call := range f.Calls() {
		for _, arg := range call {
			if strings.Contains(arg, token) {
				out = append(out, call)
				break
			}
		}
	}
	return out
}

// Run implements ffmpeg.Runner.
func (f *FakeMedia) Run(ctx context.Context, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	fail, override := f.fail, f.override
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fail != nil {
		if err := fail(args); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		return errors.New("fake ffmpeg: no arguments")
	}
	out := args[len(args)-1]

	var (
		dur  float64
		kind string
		err  error
	)
	if override != nil {
		if d, ok := override(args); ok {
			dur, kind = d, kindForPath(out)
		} else {
			dur, kind, err = outputOf(args)
		}
	} else {
		dur, kind, err = outputOf(args)
	}
	if err != nil {
		return err
	}
	if math.IsInf(dur, 0) || math.IsNaN(dur) {
		return fmt.Errorf("fake ffmpeg: unbounded output for %s", out)
	}
	return writeManifest(out, kind, dur)
}

// Inspect implements ffprobe.Prober.
func (f *FakeMedia) Inspect(_ context.Context, path string) (ffprobe.Result, error) {
	dur, kind, err := ReadManifest(path)
	if err != nil {
		return ffprobe.Result{}, err
	}
	stream := ffprobe.Stream{CodecType: kind, Duration: strconv.FormatFloat(dur, 'f', 6, 64)}
	if kind == "video" {
		stream.Width, stream.Height, stream.FrameRate = 1080, 1920, "30/1"
	}
	return ffprobe.Result{
		Streams: []ffprobe.Stream{stream},
		Format:  ffprobe.Format{Filename: path, Duration: stream.Duration, NBStreams: 1},
	}, nil
}

// WriteMedia writes a manifest file of the given kind and duration.
func WriteMedia(t testing.TB, path, kind string, duration float64) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := writeManifest(path, kind, duration); err != nil {
		t.Fatalf("write media %s: %v", path, err)
	}
	return path
}

// MediaBytes returns manifest bytes for an audio clip of duration seconds,
// for fakes that hand audio back as bytes.
func MediaBytes(duration float64) []byte {
	return []byte(manifest("audio", duration))
}

// ReadManifest parses a file written by FakeMedia.
func ReadManifest(path string) (float64, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer file.Close()
	var (
		dur   = math.NaN()
		kind  = "audio"
		found bool
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "dur":
			dur, err = strconv.ParseFloat(value, 64)
			if err != nil {
				return 0, "", fmt.Errorf("fake probe: %s: %w", path, err)
			}
			found = true
		case "kind":
			kind = value
		}
	}
	if !found {
		return 0, "", fmt.Errorf("fake probe: %s: invalid data found when processing input", path)
	}
	return dur, kind, nil
}

func manifest(kind string, duration float64) string {
	return "dur=" + strconv.FormatFloat(duration, 'f', 6, 64) + "\nkind=" + kind + "\n"
}

func writeManifest(path, kind string, duration float64) error {
	return os.WriteFile(path, []byte(manifest(kind, duration)), 0o644)
}

func kindForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3", ".m4a", ".aac":
		return "audio"
	default:
		return "video"
	}
}

var (
	labelPattern = regexp.MustCompile(`\[[^\]]*\]`)
	lavfiLength  = regexp.MustCompile(`(?:^|:)d=([0-9.]+)`)
)

func outputOf(args []string) (float64, string, error) {
	var (
		inputs   []float64
		pendingT = -1.0
		lavfi    bool
		concat   bool
		loop     bool
		shortest bool
		filters  []string
	)
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-t":
			pendingT = parseSeconds(args[i+1])
			i++
		case "-f":
			lavfi = args[i+1] == "lavfi"
			concat = args[i+1] == "concat"
			i++
		case "-stream_loop":
			loop = true
			i++
		case "-shortest":
			shortest = true
		case "-vf", "-af", "-filter:a", "-filter:v", "-filter_complex":
			filters = append(filters, args[i+1])
			i++
		case "-i":
			src := args[i+1]
			i++
			var (
				d   float64
				err error
			)
			switch {
			case lavfi:
				d = math.Inf(1)
				if m := lavfiLength.FindStringSubmatch(src); m != nil {
					d = parseSeconds(m[1])
				}
			case concat:
				d, err = sumConcatList(src)
			default:
				d, _, err = ReadManifest(src)
			}
			if err != nil {
				return 0, "", err
			}
			if loop {
				d = math.Inf(1)
			}
			if pendingT >= 0 {
				d = math.Min(d, pendingT)
				pendingT = -1
			}
			inputs = append(inputs, d)
			lavfi, concat, loop = false, false, false
		}
	}
	if len(inputs) == 0 {
		return 0, "", errors.New("fake ffmpeg: no inputs")
	}

	graph := strings.Join(filters, ";")
	base := inputs[0]
	switch {
	case shortest:
		for _, d := range inputs[1:] {
			base = math.Min(base, d)
		}
	case strings.Contains(graph, "amix") || strings.Contains(graph, "concat="):
		base = 0
		for _, d := range inputs {
			if !math.IsInf(d, 0) {
				base = math.Max(base, d)
			}
		}
	}
	dur := applyFilters(base, graph)
	if pendingT >= 0 {
		dur = math.Min(dur, pendingT)
	}
	return dur, kindForPath(args[len(args)-1]), nil
}

func applyFilters(d float64, graph string) float64 {
	for _, chain := range strings.Split(graph, ";") {
		for _, tok := range strings.Split(chain, ",") {
			tok = strings.TrimSpace(labelPattern.ReplaceAllString(tok, ""))
			name, opts, _ := strings.Cut(tok, "=")
			switch name {
			case "setpts":
				if f, ok := strings.CutPrefix(opts, "PTS/"); ok {
					if v := parseSeconds(f); v > 0 {
						d /= v
					}
				} else if f, ok := strings.CutSuffix(opts, "*PTS"); ok {
					d *= parseSeconds(f)
				}
			case "tpad":
				d += option(opts, "stop_duration")
			case "trim", "atrim":
				if v := option(opts, "duration"); v > 0 {
					d = math.Min(d, v)
				} else if v := option(opts, "end"); v > 0 {
					d = math.Min(d, v)
				}
			case "apad":
				if v := option(opts, "whole_dur"); v > 0 {
					d = math.Max(d, v)
				} else if v := option(opts, "pad_dur"); v > 0 {
					d += v
				} else {
					d = math.Inf(1)
				}
			case "atempo":
				if v := parseSeconds(opts); v > 0 {
					d /= v
				}
			}
		}
	}
	return d
}

func option(opts, key string) float64 {
	for _, part := range strings.Split(opts, ":") {
		if k, v, ok := strings.Cut(part, "="); ok && k == key {
			return parseSeconds(v)
		}
	}
	return 0
}

func sumConcatList(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "file ") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		name = strings.ReplaceAll(name, `'\''`, "'")
		d, _, err := ReadManifest(name)
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return v
}
