package api_test

import (
	"context"
	"testing"

	"montage/internal/api"
	"montage/internal/queue"
	"montage/internal/testsupport"
)

func TestRunServiceListAndDescribe(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewRun(t, store, "first", "a.mp4")
	second := testsupport.NewRun(t, store, "second", "b.mp4")
	testsupport.MustTransition(t, store, second.ID, queue.StatusAnalyzing, queue.StatusReview)
	if _, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: first.ID, Stage: queue.StageAnalyze}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	svc := api.NewRunService(store)
	runs, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	review, err := svc.List(ctx, queue.StatusReview)
	if err != nil {
		t.Fatalf("list review: %v", err)
	}
	if len(review) != 1 || review[0].ID != second.ID {
		t.Fatalf("review runs = %+v", review)
	}

	detail, err := svc.Describe(ctx, first.ID)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if detail == nil || detail.Title != "first" {
		t.Fatalf("detail = %+v", detail)
	}
	if len(detail.Tasks) != 1 || detail.Tasks[0].Stage != "analyze" {
		t.Fatalf("tasks = %+v", detail.Tasks)
	}

	missing, err := svc.Describe(ctx, "nope")
	if err != nil {
		t.Fatalf("describe missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown run, got %+v", missing)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["UPLOADING"] != 1 || stats["REVIEW"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestNilRunServiceIsEmpty(t *testing.T) {
	var svc *api.RunService
	runs, err := svc.List(context.Background())
	if err != nil || runs != nil {
		t.Fatalf("List on nil service = %v, %v", runs, err)
	}
}
