package testsupport

import (
	"context"
	"testing"

	"montage/internal/config"
	"montage/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates a run with the given clip references.
func NewRun(t testing.TB, store *queue.Store, title string, videoRefs ...string) *queue.Run {
	t.Helper()

	if len(videoRefs) == 0 {
		videoRefs = []string{"clip-1.mp4"}
	}
	run, err := store.CreateRun(context.Background(), queue.NewRun{Title: title, VideoRefs: videoRefs})
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}

// MustTransition moves a run through the given statuses in order, failing on any rejected write.
func MustTransition(t testing.TB, store *queue.Store, runID string, statuses ...queue.Status) {
	t.Helper()

	run, err := store.GetRun(context.Background(), runID)
	if err != nil || run == nil {
		t.Fatalf("store.GetRun(%s): %v", runID, err)
	}
	current := run.Status
	for _, next := range statuses {
		ok, err := store.Transition(context.Background(), runID, next, current)
		if err != nil {
			t.Fatalf("transition %s -> %s: %v", current, next, err)
		}
		if !ok {
			t.Fatalf("transition %s -> %s rejected", current, next)
		}
		current = next
	}
}
