package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/services"
)

func logFile(t *testing.T) (string, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	read := func() string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		return string(data)
	}
	return path, read
}

func TestNewFromConfigWritesStateLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	data, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "daemon started") {
		t.Fatalf("expected message in log file, got %q", data)
	}
}

func TestConsoleFormatSubjectAndFields(t *testing.T) {
	path, read := logFile(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "0123456789abcdef")
	ctx = services.WithStage(ctx, "render")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline")).Info("segment stretched", logging.Float64("factor", 0.85))

	out := read()
	for _, want := range []string{"INFO", "[pipeline]", "Run 01234567 (render)", "segment stretched", "factor=0.85"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "run_id=") {
		t.Fatalf("run_id should be folded into subject: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("file output should not be colored: %q", out)
	}
}

func TestConsoleQuotesValuesWithSpaces(t *testing.T) {
	path, read := logFile(t)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("narration degraded", logging.String("reason", "provider unavailable"), logging.Error(errors.New("boom")))

	out := read()
	if !strings.Contains(out, `reason="provider unavailable"`) {
		t.Fatalf("expected quoted reason, got %q", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Fatalf("expected error field, got %q", out)
	}
}

func TestJSONFormatIncludesContextFields(t *testing.T) {
	path, read := logFile(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithRequestID(ctx, "req-9")
	ctx = services.WithSegmentID(ctx, "seg-2")
	logging.WithContext(ctx, logger).Debug("probe")

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &record); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if record["level"] != "debug" {
		t.Fatalf("level = %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts key")
	}
	if record[logging.FieldRunID] != "run-1" || record[logging.FieldRequestID] != "req-9" || record[logging.FieldSegmentID] != "seg-2" {
		t.Fatalf("missing context fields: %v", record)
	}
}

func TestLevelFiltering(t *testing.T) {
	path, read := logFile(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logging.WarnWithContext(logger, "visible", "speech_fallback")

	out := read()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	for _, want := range []string{"visible", "event_type=speech_fallback", "error_hint=", "impact="} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should not be enabled")
	}
	logging.WithContext(context.Background(), nil).Info("ignored")
}

func TestConsoleRoundsFloatSeconds(t *testing.T) {
	path, read := logFile(t)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("segment reconciled", logging.Float64("video_seconds", 5.6000000001), logging.Float64("pad_seconds", 10))

	out := read()
	if !strings.Contains(out, "video_seconds=5.6") || strings.Contains(out, "5.6000") {
		t.Fatalf("expected rounded float, got %q", out)
	}
	if !strings.Contains(out, "pad_seconds=10") || strings.Contains(out, "pad_seconds=10.") {
		t.Fatalf("expected integral float without decimals, got %q", out)
	}
}
