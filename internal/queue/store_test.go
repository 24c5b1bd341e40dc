package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"montage/internal/queue"
	"montage/internal/testsupport"
)

func TestCreateRunRegistersAssets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, queue.NewRun{
		Title:     "Harbor loft",
		Style:     "cozy",
		VideoRefs: []string{"a.mp4", "b.mp4"},
	})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.Status != queue.StatusUploading {
		t.Fatalf("status = %s, want UPLOADING", run.Status)
	}
	if run.Style != "cozy" {
		t.Fatalf("style = %q", run.Style)
	}

	assets, err := store.ListVideoAssets(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListVideoAssets failed: %v", err)
	}
	if len(assets) != 2 || assets[0].Ref != "a.mp4" || assets[1].SortOrder != 1 {
		t.Fatalf("unexpected assets: %#v", assets)
	}
}

func TestCreateRunValidates(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.CreateRun(ctx, queue.NewRun{VideoRefs: []string{"a.mp4"}}); err == nil {
		t.Fatal("expected error for missing title")
	}
	if _, err := store.CreateRun(ctx, queue.NewRun{Title: "x"}); err == nil {
		t.Fatal("expected error for missing videos")
	}
}

func TestGetRunMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	run, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run, got %#v", run)
	}
}

func TestTransitionIsConditional(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Conditional")

	ok, err := store.Transition(ctx, run.ID, queue.StatusAnalyzing, queue.StatusUploading)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	// A duplicate delivery expects UPLOADING again and must lose.
	ok, err = store.Transition(ctx, run.ID, queue.StatusAnalyzing, queue.StatusUploading)
	if err != nil {
		t.Fatalf("duplicate transition: %v", err)
	}
	if ok {
		t.Fatal("duplicate transition should not apply")
	}

	if _, err := store.Transition(ctx, run.ID, queue.StatusReview); err == nil {
		t.Fatal("expected error without predecessor statuses")
	}
}

func TestStatusMonotonicUnderShuffledEvents(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Monotonic")

	type event struct {
		to   queue.Status
		from []queue.Status
	}
	forward := []event{
		{queue.StatusAnalyzing, []queue.Status{queue.StatusUploading}},
		{queue.StatusReview, []queue.Status{queue.StatusUploading, queue.StatusAnalyzing}},
		{queue.StatusScriptGenerated, []queue.Status{queue.StatusReview}},
		{queue.StatusAudioGenerating, []queue.Status{queue.StatusScriptGenerated, queue.StatusAudioGenerating}},
		{queue.StatusAudioGenerated, []queue.Status{queue.StatusAudioGenerating}},
		{queue.StatusRendering, []queue.Status{queue.StatusAudioGenerated, queue.StatusRendering}},
		{queue.StatusCompleted, []queue.Status{queue.StatusRendering}},
	}
	// Deliver everything, then redeliver in reverse, then a stale failure.
	sequence := append([]event{}, forward...)
	for i := len(forward) - 1; i >= 0; i-- {
		sequence = append(sequence, forward[i])
	}

	last := queue.StatusUploading
	for _, ev := range sequence {
		if _, err := store.Transition(ctx, run.ID, ev.to, ev.from...); err != nil {
			t.Fatalf("transition: %v", err)
		}
		current, err := store.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if !current.Status.AtOrAfter(last) {
			t.Fatalf("status moved backward: %s -> %s", last, current.Status)
		}
		last = current.Status
	}
	if last != queue.StatusCompleted {
		t.Fatalf("final status = %s", last)
	}

	changed, err := store.MarkFailed(ctx, run.ID, queue.Failure{Stage: queue.StageRender, Trace: "late"})
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if changed {
		t.Fatal("MarkFailed must not override COMPLETED")
	}
}

func TestMarkFailedRecordsContext(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Failing")

	trace := strings.Repeat("x", 25000)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	changed, err := store.MarkFailed(ctx, run.ID, queue.Failure{
		Stage:     queue.StageAudio,
		TaskID:    strings.Repeat("t", 200),
		RequestID: "req-1",
		Trace:     trace,
		At:        at,
	})
	if err != nil || !changed {
		t.Fatalf("MarkFailed: changed=%v err=%v", changed, err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != queue.StatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.ErrorLog) != 20000 {
		t.Fatalf("error log length = %d, want 20000", len(got.ErrorLog))
	}
	if len(got.ErrorTaskID) != 128 {
		t.Fatalf("task id length = %d, want 128", len(got.ErrorTaskID))
	}
	if got.ErrorStep != "audio" || got.ErrorRequestID != "req-1" {
		t.Fatalf("unexpected failure context: %#v", got)
	}
	if got.ErrorAt == nil || !got.ErrorAt.Equal(at) {
		t.Fatalf("error at = %v, want %v", got.ErrorAt, at)
	}

	// FAILED is absorbing for stage transitions.
	ok, err := store.Transition(ctx, run.ID, queue.StatusAudioGenerated, queue.StatusAudioGenerating)
	if err != nil || ok {
		t.Fatalf("transition out of FAILED: ok=%v err=%v", ok, err)
	}

	reset, err := store.ResetFailed(ctx, run.ID, queue.StatusScriptGenerated)
	if err != nil || !reset {
		t.Fatalf("ResetFailed: reset=%v err=%v", reset, err)
	}
	got, _ = store.GetRun(ctx, run.ID)
	if got.Status != queue.StatusScriptGenerated || got.ErrorLog != "" || got.ErrorAt != nil {
		t.Fatalf("reset did not clear failure: %#v", got)
	}
}

func TestSegmentsReplaceAndScript(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Segments")

	segs, err := store.ReplaceSegments(ctx, run.ID, []queue.Segment{
		{VideoRef: "a.mp4", Duration: 4.2, EmotionTag: "warm"},
		{VideoRef: "b.mp4", Duration: 0},
	})
	if err != nil {
		t.Fatalf("ReplaceSegments: %v", err)
	}
	if segs[1].Duration != queue.DefaultSegmentDuration {
		t.Fatalf("missing duration should default, got %v", segs[1].Duration)
	}

	// Replacing again is idempotent for analyze retries.
	segs, err = store.ReplaceSegments(ctx, run.ID, segs)
	if err != nil {
		t.Fatalf("ReplaceSegments again: %v", err)
	}

	if err := store.ApplyScript(ctx, run.ID, []queue.SegmentScript{
		{SegmentID: segs[0].ID, Text: "Bright living room.", Cue: "whoosh"},
		{SegmentID: segs[1].ID, Text: "Quiet bedroom."},
	}); err != nil {
		t.Fatalf("ApplyScript: %v", err)
	}
	if err := store.SetSegmentAudio(ctx, segs[0].ID, "/tmp/seg0.wav", 4.25); err != nil {
		t.Fatalf("SetSegmentAudio: %v", err)
	}

	listed, err := store.ListSegments(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("segment count = %d", len(listed))
	}
	if listed[0].NarrationText != "Bright living room." || listed[0].Cue != "whoosh" || listed[0].AudioDuration != 4.25 {
		t.Fatalf("unexpected first segment: %#v", listed[0])
	}
	if listed[1].Index != 1 || listed[1].NarrationText != "Quiet bedroom." {
		t.Fatalf("unexpected second segment: %#v", listed[1])
	}

	if err := store.ApplyScript(ctx, run.ID, []queue.SegmentScript{{SegmentID: "missing", Text: "x"}}); err == nil {
		t.Fatal("expected error for unknown segment")
	}
}

func TestClaimTaskRespectsDueTime(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Tasks")

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	later, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageScript, NotBefore: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("EnqueueTask later: %v", err)
	}
	due, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageAnalyze})
	if err != nil {
		t.Fatalf("EnqueueTask due: %v", err)
	}
	if due.RequestID == "" {
		t.Fatal("expected generated request id")
	}

	claimed, err := store.ClaimTask(ctx)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if claimed == nil || claimed.ID != due.ID || claimed.State != queue.TaskRunning {
		t.Fatalf("unexpected claim: %#v", claimed)
	}

	none, err := store.ClaimTask(ctx)
	if err != nil {
		t.Fatalf("ClaimTask second: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nothing due, got %#v", none)
	}

	now = now.Add(2 * time.Minute)
	next, err := store.ClaimTask(ctx)
	if err != nil {
		t.Fatalf("ClaimTask after advance: %v", err)
	}
	if next == nil || next.ID != later.ID {
		t.Fatalf("expected later task, got %#v", next)
	}
}

func TestClaimTaskOnceUnderConcurrency(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Concurrent")

	const tasks = 5
	for i := 0; i < tasks; i++ {
		if _, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageRender}); err != nil {
			t.Fatalf("EnqueueTask: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := store.ClaimTask(ctx)
				if err != nil {
					t.Errorf("ClaimTask: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != tasks {
		t.Fatalf("claimed %d distinct tasks, want %d", len(seen), tasks)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("task %s claimed %d times", id, count)
		}
	}
}

func TestRequeueAndReclaim(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Reclaim")

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	task, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageAudio, RequestID: "req-a"})
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if _, err := store.ClaimTask(ctx); err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if err := store.RequeueTask(ctx, task.ID, now.Add(4*time.Second), "provider timeout"); err != nil {
		t.Fatalf("RequeueTask: %v", err)
	}
	got, _ := store.GetTask(ctx, task.ID)
	if got.State != queue.TaskPending || got.Attempt != 1 || got.LastError != "provider timeout" || got.RequestID != "req-a" {
		t.Fatalf("unexpected requeued task: %#v", got)
	}

	now = now.Add(5 * time.Second)
	if _, err := store.ClaimTask(ctx); err != nil {
		t.Fatalf("ClaimTask again: %v", err)
	}

	now = now.Add(10 * time.Minute)
	reclaimed, err := store.ReclaimStaleTasks(ctx, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleTasks: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}
	open, err := store.HasOpenTask(ctx, run.ID, queue.StageAudio)
	if err != nil || !open {
		t.Fatalf("HasOpenTask: open=%v err=%v", open, err)
	}

	if err := store.KillTask(ctx, task.ID, "budget exhausted"); err != nil {
		t.Fatalf("KillTask: %v", err)
	}
	open, _ = store.HasOpenTask(ctx, run.ID, queue.StageAudio)
	if open {
		t.Fatal("dead task should not be open")
	}
}

func TestHealthAndCheckHealth(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Health")
	testsupport.NewRun(t, store, "Other")
	if _, err := store.MarkFailed(ctx, run.ID, queue.Failure{Stage: queue.StageAnalyze, Trace: "boom"}); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Failed != 1 || health.Processing != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}

	db, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !db.DatabaseExists || !db.DatabaseReadable || !db.IntegrityCheck || len(db.MissingTables) != 0 || db.TotalRuns != 2 {
		t.Fatalf("unexpected db health: %#v", db)
	}
}

func TestParseHelpers(t *testing.T) {
	if s, ok := queue.ParseStatus(" rendering "); !ok || s != queue.StatusRendering {
		t.Fatalf("ParseStatus = %q %v", s, ok)
	}
	if _, ok := queue.ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status")
	}
	if st, ok := queue.ParseStage("Render"); !ok || st != queue.StageRender {
		t.Fatalf("ParseStage = %q %v", st, ok)
	}
	if queue.StatusFailed.AtOrAfter(queue.StatusUploading) {
		t.Fatal("FAILED is not on the forward order")
	}
	if !queue.StatusCompleted.AtOrAfter(queue.StatusReview) {
		t.Fatal("COMPLETED should be after REVIEW")
	}
}

func TestOpenReusesAndRejectsSchemaVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	store.Close()

	store, err = queue.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump user_version: %v", err)
	}
	db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestHeartbeatReportsLostLease(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Lease")

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	if _, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageAudio}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	task, err := store.ClaimTask(ctx)
	if err != nil || task == nil {
		t.Fatalf("ClaimTask: %v %v", task, err)
	}
	if err := store.HeartbeatTask(ctx, task.ID); err != nil {
		t.Fatalf("HeartbeatTask while running: %v", err)
	}

	now = now.Add(10 * time.Minute)
	if n, err := store.ReclaimStaleTasks(ctx, now.Add(-time.Minute)); err != nil || n != 1 {
		t.Fatalf("ReclaimStaleTasks = %d, %v", n, err)
	}
	if err := store.HeartbeatTask(ctx, task.ID); !errors.Is(err, queue.ErrTaskLost) {
		t.Fatalf("expected ErrTaskLost after reclaim, got %v", err)
	}
}
