package services_test

import (
	"errors"
	"strings"
	"testing"

	"montage/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "render", "concat", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"render", "concat", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "script", "align", "bad json", nil), true},
		{"configuration", services.Wrap(services.ErrConfiguration, "audio", "provider", "missing", nil), true},
		{"not found", services.Wrap(services.ErrNotFound, "render", "load", "run", nil), true},
		{"transient", services.Wrap(services.ErrTransient, "audio", "synthesize", "503", errors.New("io")), false},
		{"structural", services.Wrap(services.ErrStructural, "audio", "synthesize", "413", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.IsFatal(tt.err); got != tt.want {
				t.Fatalf("IsFatal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummaryReturnsFirstLine(t *testing.T) {
	err := errors.New("\n  render failed: ffmpeg exit 1\ngoroutine 1 [running]:\nmain.main()")
	if got := services.Summary(err); got != "render failed: ffmpeg exit 1" {
		t.Fatalf("Summary = %q", got)
	}
	if got := services.Summary(nil); got != "" {
		t.Fatalf("Summary(nil) = %q", got)
	}
}
