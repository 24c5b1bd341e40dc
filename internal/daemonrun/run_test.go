package daemonrun

import (
	"context"
	"testing"
)

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBinaryAvailable(t *testing.T) {
	if binaryAvailable("") {
		t.Fatal("empty command should not be available")
	}
	if binaryAvailable("montage-definitely-not-installed") {
		t.Fatal("unknown command should not be available")
	}
}
