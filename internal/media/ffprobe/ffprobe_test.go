package ffprobe

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", Width: 1080, Height: 1920, FrameRate: "30000/1001"},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if w, h, ok := result.VideoDimensions(); !ok || w != 1080 || h != 1920 {
		t.Fatalf("unexpected dimensions: %d %d %v", w, h, ok)
	}
	if fps := result.FrameRate(); math.Abs(fps-29.97) > 0.01 {
		t.Fatalf("unexpected frame rate: %v", fps)
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "audio", Duration: "4.2"}, {CodecType: "video", Duration: "N/A"}}}
	if got := result.DurationSeconds(); got != 4.2 {
		t.Fatalf("duration = %v, want 4.2", got)
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	empty := filepath.Join(dir, "empty.wav")
	if err := os.WriteFile(good, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	valid := Result{Streams: []Stream{{CodecType: "audio"}}, Format: Format{Duration: "1.5"}}

	tests := []struct {
		name    string
		path    string
		result  Result
		wantErr bool
	}{
		{"valid", good, valid, false},
		{"missing", filepath.Join(dir, "missing.wav"), valid, true},
		{"empty file", empty, valid, true},
		{"no streams", good, Result{Format: Format{Duration: "1"}}, true},
		{"zero duration", good, Result{Streams: valid.Streams}, true},
		{"nan duration", good, Result{Streams: valid.Streams, Format: Format{Duration: "x"}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.path, tc.result)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidMedia) {
					t.Fatalf("expected ErrInvalidMedia, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestInspectWithStubBinary(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\",\"width\":640,\"height\":360}],\"format\":{\"duration\":\"2.000000\",\"size\":\"10\"}}'\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	media := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(media, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Duration(context.Background(), Tool{Binary: stub}, media)
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 2 {
		t.Fatalf("duration = %v, want 2", got)
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
