package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestCheckBinariesReadsVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs")
	}
	binDir := t.TempDir()
	ffmpeg := filepath.Join(binDir, "ffmpeg")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 7.0.2 Copyright (c) 2000-2024 the FFmpeg developers'\necho 'built with gcc'\n")
	if err := os.WriteFile(ffmpeg, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	failing := filepath.Join(binDir, "broken")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckBinaries(context.Background(), []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, VersionArgs: []string{"-version"}},
		{Name: "Broken", Command: failing, VersionArgs: []string{"-version"}},
		{Name: "Unset"},
	})
	if results[0].Version != "ffmpeg version 7.0.2" {
		t.Fatalf("version = %q", results[0].Version)
	}
	if !results[1].Available || results[1].Version != "" {
		t.Fatalf("failing version probe should leave the binary available: %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestResolveFFprobeSidecar(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	ffprobePath := filepath.Join(tmp, executableName("ffprobe"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	if err := os.WriteFile(ffprobePath, script, 0o755); err != nil {
		t.Fatalf("write ffprobe sidecar: %v", err)
	}
	t.Setenv("PATH", "")

	status := ResolveFFprobe(ffmpegPath, "ffprobe")
	if !status.Available {
		t.Fatalf("expected ffprobe sidecar to be available, got detail %q", status.Detail)
	}
	if status.Command != ffprobePath {
		t.Fatalf("expected ffprobe command %q, got %q", ffprobePath, status.Command)
	}
}

func TestResolveFFprobePathFallback(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}

	binDir := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	ffprobePath := filepath.Join(binDir, executableName("ffprobe"))
	if err := os.WriteFile(ffprobePath, script, 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	status := ResolveFFprobe(ffmpegPath, "")
	if !status.Available {
		t.Fatalf("expected ffprobe fallback to be available, got detail %q", status.Detail)
	}
	if status.Command != ffprobePath {
		t.Fatalf("expected ffprobe command %q, got %q", ffprobePath, status.Command)
	}
}

func TestResolveFFprobeExplicitCommand(t *testing.T) {
	tmp := t.TempDir()
	custom := filepath.Join(tmp, "probe-7")
	if err := os.WriteFile(custom, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write probe stub: %v", err)
	}
	status := ResolveFFprobe("ffmpeg", custom)
	if !status.Available || status.Command != custom {
		t.Fatalf("expected explicit ffprobe %q, got %#v", custom, status)
	}

	status = ResolveFFprobe("ffmpeg", filepath.Join(tmp, "missing-probe"))
	if status.Available {
		t.Fatal("expected missing explicit ffprobe to be unavailable")
	}
}

func TestResolveFFprobeNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := ResolveFFprobe(filepath.Join(t.TempDir(), executableName("ffmpeg")), "ffprobe")
	if status.Available {
		t.Fatal("expected ffprobe resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffprobe is unavailable")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
