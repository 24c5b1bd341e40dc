package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/testsupport"
)

func newLocalTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCommand(withConfig(cfg))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateListShowAgainstStore(t *testing.T) {
	cfg := newLocalTestConfig(t)

	out, err := runCLI(t, cfg, "create", "--title", "Loft tour", "--json", "https://media.test/a.mp4", "https://media.test/b.mp4")
	if err != nil {
		t.Fatalf("create: %v\n%s", err, out)
	}
	var created api.CreateRunResponse
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode create output: %v\n%s", err, out)
	}
	if created.Run.ID == "" || created.Run.Status != string(queue.StatusUploading) {
		t.Fatalf("unexpected run %+v", created.Run)
	}
	if created.Task.Stage != string(queue.StageAnalyze) {
		t.Fatalf("first task stage = %q, want analyze", created.Task.Stage)
	}

	out, err = runCLI(t, cfg, "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var runs []api.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].ID != created.Run.ID {
		t.Fatalf("list returned %+v", runs)
	}

	out, err = runCLI(t, cfg, "show", created.Run.ID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Loft tour", "UPLOADING", "Tasks", "analyze"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestCreateResolvesLocalClipPaths(t *testing.T) {
	refs, err := resolveClipRefs([]string{"clip.mp4", "s3://bucket/clip.mp4"})
	if err != nil {
		t.Fatalf("resolveClipRefs: %v", err)
	}
	if !filepath.IsAbs(refs[0]) {
		t.Fatalf("local clip not made absolute: %q", refs[0])
	}
	if refs[1] != "s3://bucket/clip.mp4" {
		t.Fatalf("url rewritten: %q", refs[1])
	}
	if _, err := resolveClipRefs([]string{"  "}); err == nil {
		t.Fatal("expected error for blank clip")
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	cfg := newLocalTestConfig(t)
	if _, err := runCLI(t, cfg, "create", "clip.mp4"); err == nil {
		t.Fatal("expected missing --title to fail")
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	cfg := newLocalTestConfig(t)
	_, err := runCLI(t, cfg, "list", "--status", "nope")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListEmpty(t *testing.T) {
	cfg := newLocalTestConfig(t)
	out, err := runCLI(t, cfg, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out) != "No runs" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestShowMissingRun(t *testing.T) {
	cfg := newLocalTestConfig(t)
	_, err := runCLI(t, cfg, "show", "does-not-exist")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestApproveQueuesScriptStage(t *testing.T) {
	cfg := newLocalTestConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "Review me")
	testsupport.MustTransition(t, store, run.ID, queue.StatusAnalyzing, queue.StatusReview)

	out, err := runCLI(t, cfg, "approve", run.ID)
	if err != nil {
		t.Fatalf("approve: %v\n%s", err, out)
	}
	if !strings.Contains(out, "queued script task") {
		t.Fatalf("unexpected approve output:\n%s", out)
	}
	if !strings.Contains(out, "Daemon not reachable") {
		t.Fatalf("expected local access note:\n%s", out)
	}

	has, err := store.HasOpenTask(context.Background(), run.ID, queue.StageScript)
	if err != nil {
		t.Fatalf("HasOpenTask: %v", err)
	}
	if !has {
		t.Fatal("expected a pending script task")
	}
}

func TestApproveRejectsWrongStatus(t *testing.T) {
	cfg := newLocalTestConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "Too early")

	_, err := runCLI(t, cfg, "approve", run.ID)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetryRejectsRunThatDidNotFail(t *testing.T) {
	cfg := newLocalTestConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "Healthy")

	if _, err := runCLI(t, cfg, "retry", run.ID); err == nil {
		t.Fatal("expected retry of a non-failed run to fail")
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "montage", "config.toml")
	cmd := buildRootCommand(withConfig(nil))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	cmd = buildRootCommand(withConfig(nil))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
}
