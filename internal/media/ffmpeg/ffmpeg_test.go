package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"montage/internal/services"
)

func TestRunPrefixesQuietFlags(t *testing.T) {
	tool := New("")
	var gotName string
	var gotArgs []string
	tool.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	})

	if err := tool.Run(context.Background(), "-i", "in.mp4", "out.mp4"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotName != "ffmpeg" {
		t.Fatalf("binary = %q", gotName)
	}
	want := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", "in.mp4", "out.mp4"}
	if !slices.Equal(gotArgs, want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
}

func TestRunWrapsFailureAsExternalTool(t *testing.T) {
	tool := New("/opt/ffmpeg")
	tool.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("exit status 1")
	})
	err := tool.Run(context.Background(), "-i", "x")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestRunReturnsContextError(t *testing.T) {
	tool := New("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tool.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("signal: killed")
	})
	if err := tool.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuilders(t *testing.T) {
	enc := Encoding{Width: 1080, Height: 1920, FPS: 30, CRF: 20}

	args := VideoFilterArgs("in.mp4", "out.mp4", 1.5, 4, "setpts=PTS/0.850000", enc)
	joined := strings.Join(args, " ")
	for _, want := range []string{"-ss 1.500", "-t 4.000", "-vf setpts=PTS/0.850000,scale=1080:1920", "-an", "-r 30", "-crf 20"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
	if args[len(args)-1] != "out.mp4" {
		t.Fatalf("output must be last: %v", args)
	}

	color := strings.Join(ColorArgs("p.mp4", "", 2.5, enc), " ")
	if !strings.Contains(color, "color=c=black:s=1080x1920:r=30:d=2.500") {
		t.Fatalf("unexpected color args: %s", color)
	}

	card := CardArgs("c.mp4", "navy", 2, "drawtext=text='hi'", enc)
	if card[4] != "-vf" || card[5] != "drawtext=text='hi'" {
		t.Fatalf("drawtext not placed after input: %v", card)
	}

	pad := strings.Join(PadArgs("a.wav", "b.wav", 5), " ")
	if !strings.Contains(pad, "apad=whole_dur=5.000") || !strings.Contains(pad, "-t 5.000") {
		t.Fatalf("unexpected pad args: %s", pad)
	}

	tempo := strings.Join(AtempoArgs("a.wav", "b.wav", 1.25), " ")
	if !strings.Contains(tempo, "atempo=1.2500") {
		t.Fatalf("unexpected tempo args: %s", tempo)
	}

	mux := MuxArgs("v.mp4", "a.wav", "o.mp4", "", enc)
	if !slices.Contains(mux, "copy") || !slices.Contains(mux, "+faststart") {
		t.Fatalf("unexpected mux args: %v", mux)
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	if err := WriteConcatList(list, []string{filepath.Join(dir, "a.wav"), filepath.Join(dir, "it's.wav")}); err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}
	data, err := os.ReadFile(list)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", data)
	}
	if !strings.HasSuffix(lines[1], `it'\''s.wav'`) {
		t.Fatalf("quote not escaped: %q", lines[1])
	}
	if err := WriteConcatList(list, nil); err == nil {
		t.Fatal("expected error for empty list")
	}
}

func TestEscapeText(t *testing.T) {
	if got := EscapeText("50%: off"); got != `50\%\: off` {
		t.Fatalf("EscapeText = %q", got)
	}
}
