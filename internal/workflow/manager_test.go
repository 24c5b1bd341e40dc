package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montage/internal/notifications"
	"montage/internal/pipeline"
	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/testsupport"
	"montage/internal/workflow"
)

func transient(msg string) error {
	return services.Wrap(services.ErrTransient, "audio", "synthesize", msg, nil)
}

func TestDrainCarriesRunToCompletionWithAutoApprove(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	run := h.submit(t, "harbor house")

	assert.Equal(t, 4, h.drain(t))
	got := h.run(t, run.ID)
	assert.Equal(t, queue.StatusCompleted, got.Status)

	tasks := h.tasks(t, run.ID)
	require.Len(t, tasks, 4)
	requestID := tasks[0].RequestID
	require.NotEmpty(t, requestID)
	for _, task := range tasks {
		assert.Equal(t, queue.TaskDone, task.State, task.Stage)
		assert.Equal(t, requestID, task.RequestID, "stages share the request id")
	}
	for _, stage := range queue.AllStages() {
		assert.Equal(t, 1, h.handlers[stage].Calls(), stage)
	}
	assert.Equal(t, []notifications.Event{notifications.EventRunCompleted}, h.notifier.Events())
	assert.Equal(t, "harbor house", h.notifier.Payload(notifications.EventRunCompleted)["title"])
}

func TestAnalyzeWaitsForApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, analyze, err := h.manager.Submit(ctx, queue.NewRun{Title: "gated", VideoRefs: []string{"a.mp4"}})
	require.NoError(t, err)

	assert.Equal(t, 1, h.drain(t))
	assert.Equal(t, queue.StatusReview, h.run(t, run.ID).Status)
	assert.Equal(t, 0, h.handlers[queue.StageScript].Calls())
	assert.Equal(t, 0, h.drain(t), "nothing is queued while the run waits in review")

	task, err := h.manager.Approve(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StageScript, task.Stage)
	assert.Equal(t, analyze.RequestID, task.RequestID)

	_, err = h.manager.Approve(ctx, run.ID)
	assert.True(t, errors.Is(err, services.ErrValidation), "second approve is rejected while the script task is open")

	assert.Equal(t, 3, h.drain(t))
	assert.Equal(t, queue.StatusCompleted, h.run(t, run.ID).Status)

	_, err = h.manager.Approve(ctx, run.ID)
	assert.True(t, errors.Is(err, services.ErrValidation))
	_, err = h.manager.Approve(ctx, "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestSubmitValidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, spec := range []queue.NewRun{
		{Title: " ", VideoRefs: []string{"a.mp4"}},
		{Title: "no clips"},
		{Title: "blank clip", VideoRefs: []string{"a.mp4", " "}},
	} {
		_, _, err := h.manager.Submit(ctx, spec)
		assert.True(t, errors.Is(err, services.ErrValidation), "%+v", spec)
	}
	runs, err := h.store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRetryBacksOffExponentially(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	h.handlers[queue.StageAudio].Set(func(_ context.Context, run *queue.Run, call int) pipeline.Result {
		if call <= 2 {
			return pipeline.Retry(transient("provider returned 503"))
		}
		return completion(queue.StageAudio, run.ID)
	})
	run := h.submit(t, "flaky provider")

	assert.Equal(t, 3, h.drain(t), "analyze, script and the first audio attempt")
	task := audioTask(t, h, run.ID)
	assert.Equal(t, queue.TaskPending, task.State)
	assert.Equal(t, 1, task.Attempt)
	assert.WithinDuration(t, h.clock.Now().Add(time.Second), task.NotBefore, time.Millisecond)
	assert.Contains(t, task.LastError, "provider returned 503")
	assert.Equal(t, queue.StatusAudioGenerating, h.run(t, run.ID).Status)

	assert.Equal(t, 0, h.drain(t), "retry is not due yet")

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.drain(t))
	task = audioTask(t, h, run.ID)
	assert.Equal(t, 2, task.Attempt)
	assert.WithinDuration(t, h.clock.Now().Add(2*time.Second), task.NotBefore, time.Millisecond)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 2, h.drain(t), "audio succeeds and render runs")
	assert.Equal(t, queue.StatusCompleted, h.run(t, run.ID).Status)
	assert.Equal(t, 3, h.handlers[queue.StageAudio].Calls())
}

func TestRetryBudgetExhaustionFailsRunAndOperatorRetryResumes(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	ctx := context.Background()
	h.handlers[queue.StageAudio].Set(func(context.Context, *queue.Run, int) pipeline.Result {
		return pipeline.Retry(transient("provider unreachable"))
	})
	run := h.submit(t, "doomed")

	for i := 0; i < 10; i++ {
		h.drain(t)
		h.clock.Advance(time.Hour)
	}
	assert.Equal(t, 1+h.cfg.Workflow.StageRetryBudget, h.handlers[queue.StageAudio].Calls(),
		"first execution plus the retry budget")

	failed := h.run(t, run.ID)
	require.Equal(t, queue.StatusFailed, failed.Status)
	assert.Equal(t, string(queue.StageAudio), failed.ErrorStep)
	assert.Contains(t, services.FirstLine(failed.ErrorLog), "retry budget of 3 exhausted")
	assert.Contains(t, failed.ErrorLog, "stage=audio")
	task := audioTask(t, h, run.ID)
	assert.Equal(t, queue.TaskDead, task.State)
	assert.Equal(t, task.ID, failed.ErrorTaskID)
	assert.Equal(t, task.RequestID, failed.ErrorRequestID)
	assert.Contains(t, h.notifier.Events(), notifications.EventRunFailed)
	assert.Equal(t, "audio", h.notifier.Payload(notifications.EventRunFailed)["stage"])

	_, err := h.manager.Retry(ctx, "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound))

	h.handlers[queue.StageAudio].Set(nil)
	retried, err := h.manager.Retry(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StageAudio, retried.Stage)
	assert.Equal(t, 0, retried.Attempt)
	assert.Equal(t, failed.ErrorRequestID, retried.RequestID)
	reset := h.run(t, run.ID)
	assert.Equal(t, queue.StatusScriptGenerated, reset.Status)
	assert.Empty(t, reset.ErrorLog)

	assert.Equal(t, 2, h.drain(t))
	assert.Equal(t, queue.StatusCompleted, h.run(t, run.ID).Status)

	_, err = h.manager.Retry(ctx, run.ID)
	assert.True(t, errors.Is(err, services.ErrValidation), "only FAILED runs can be retried")
}

func TestFatalResultFailsWithoutRetry(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	h.handlers[queue.StageAnalyze].Set(func(context.Context, *queue.Run, int) pipeline.Result {
		return pipeline.Fatal(services.Wrap(services.ErrNotFound, "analyze", "fetch clip", "clip-1.mp4 not found", nil))
	})
	run := h.submit(t, "missing clip")

	assert.Equal(t, 1, h.drain(t))
	got := h.run(t, run.ID)
	assert.Equal(t, queue.StatusFailed, got.Status)
	assert.Equal(t, "analyze", got.ErrorStep)
	assert.Equal(t, "not found: analyze: fetch clip: clip-1.mp4 not found", services.FirstLine(got.ErrorLog))
	assert.Equal(t, 1, h.handlers[queue.StageAnalyze].Calls())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 0, h.drain(t))
}

func TestFailureNeverOverridesCompleted(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	h.handlers[queue.StageRender].Set(func(ctx context.Context, run *queue.Run, _ int) pipeline.Result {
		moved, err := h.store.Transition(ctx, run.ID, queue.StatusCompleted, queue.StatusRendering)
		require.NoError(t, err)
		require.True(t, moved)
		return pipeline.Fatal(services.Wrap(services.ErrValidation, "render", "upload", "late failure", nil))
	})
	run := h.submit(t, "raced")

	assert.Equal(t, 4, h.drain(t))
	got := h.run(t, run.ID)
	assert.Equal(t, queue.StatusCompleted, got.Status)
	assert.Empty(t, got.ErrorLog)
	assert.NotContains(t, h.notifier.Events(), notifications.EventRunFailed)
}

func TestDuplicateDeliveryIsAcknowledged(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	ctx := context.Background()
	run := h.submit(t, "twice")
	require.Equal(t, 4, h.drain(t))

	dup, err := h.store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageAudio})
	require.NoError(t, err)
	assert.Equal(t, 1, h.drain(t))

	task, err := h.store.GetTask(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskDone, task.State)
	assert.Equal(t, 1, h.handlers[queue.StageAudio].Calls(), "handler is not re-run")
	assert.Equal(t, queue.StatusCompleted, h.run(t, run.ID).Status)
}

func TestOutOfOrderAndFailedRunTasksAreDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := testsupport.NewRun(t, h.store, "early")

	early, err := h.store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageRender})
	require.NoError(t, err)
	assert.Equal(t, 1, h.drain(t))
	task, err := h.store.GetTask(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskDead, task.State)
	assert.Equal(t, queue.StatusUploading, h.run(t, run.ID).Status)
	assert.Equal(t, 0, h.handlers[queue.StageRender].Calls())

	_, err = h.store.MarkFailed(ctx, run.ID, queue.Failure{Stage: queue.StageAnalyze, Trace: "boom"})
	require.NoError(t, err)
	late, err := h.store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageAnalyze})
	require.NoError(t, err)
	assert.Equal(t, 1, h.drain(t))
	task, err = h.store.GetTask(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskDead, task.State)
	assert.Equal(t, queue.StatusFailed, h.run(t, run.ID).Status)
}

func TestReclaimedAnalyzeResumes(t *testing.T) {
	h := newHarness(t)
	run := h.submit(t, "crashed lane")
	testsupport.MustTransition(t, h.store, run.ID, queue.StatusAnalyzing)

	assert.Equal(t, 1, h.drain(t))
	assert.Equal(t, queue.StatusReview, h.run(t, run.ID).Status)
}

func TestWrongCompletionStateIsFatal(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	h.handlers[queue.StageScript].Set(func(_ context.Context, run *queue.Run, _ int) pipeline.Result {
		return pipeline.Done(pipeline.CompletedState{RunID: run.ID})
	})
	run := h.submit(t, "confused")

	assert.Equal(t, 2, h.drain(t))
	got := h.run(t, run.ID)
	assert.Equal(t, queue.StatusFailed, got.Status)
	assert.Equal(t, "script", got.ErrorStep)
}

func TestPanickingHandlerIsRetried(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	h.handlers[queue.StageAnalyze].Set(func(_ context.Context, run *queue.Run, call int) pipeline.Result {
		if call == 1 {
			panic("nil segment")
		}
		return completion(queue.StageAnalyze, run.ID)
	})
	run := h.submit(t, "panics once")

	assert.Equal(t, 1, h.drain(t))
	tasks := h.tasks(t, run.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.TaskPending, tasks[0].State)
	assert.True(t, strings.Contains(tasks[0].LastError, "handler panicked"))

	h.clock.Advance(time.Minute)
	assert.Equal(t, 4, h.drain(t))
	assert.Equal(t, queue.StatusCompleted, h.run(t, run.ID).Status)
}

func TestDegradedCompletionNotifies(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoApprove())
	h.handlers[queue.StageRender].Set(func(_ context.Context, run *queue.Run, _ int) pipeline.Result {
		return pipeline.Done(pipeline.CompletedState{RunID: run.ID, VideoURL: "http://media.test/x.mp4", Degraded: true})
	})
	h.submit(t, "placeholders")

	h.drain(t)
	assert.Equal(t, []notifications.Event{notifications.EventRunCompleted, notifications.EventRunDegraded}, h.notifier.Events())
}

func TestStartRunsLanesUntilStopped(t *testing.T) {
	cfgHarness := newHarness(t, testsupport.WithAutoApprove())
	cfgHarness.cfg.Workflow.Workers = 3
	cfgHarness.cfg.Workflow.PollInterval = 0
	cfgHarness.store.SetClock(nil)
	manager := workflow.NewManager(cfgHarness.cfg, cfgHarness.store, nil, workflow.WithNotifier(cfgHarness.notifier))

	require.Error(t, manager.Start(context.Background()), "no stages configured")

	handlers := make([]pipeline.Handler, 0, 4)
	for _, stage := range queue.AllStages() {
		handlers = append(handlers, &stubHandler{stage: stage})
	}
	manager.ConfigureStages(handlers...)

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		run, _, err := manager.Submit(context.Background(), queue.NewRun{Title: title, VideoRefs: []string{"a.mp4"}})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	require.NoError(t, manager.Start(context.Background()))
	require.Error(t, manager.Start(context.Background()), "already running")
	assert.True(t, manager.Status(context.Background()).Running)

	require.Eventually(t, func() bool {
		stats, err := cfgHarness.store.Stats(context.Background())
		return err == nil && stats[queue.StatusCompleted] == len(ids)
	}, 10*time.Second, 20*time.Millisecond)

	manager.Stop()
	status := manager.Status(context.Background())
	assert.False(t, status.Running)
	assert.Equal(t, 3, status.Lanes)
	assert.Equal(t, 3, status.QueueStats[queue.StatusCompleted])
	manager.Stop()
}

func audioTask(t *testing.T, h *harness, runID string) queue.Task {
	t.Helper()
	for _, task := range h.tasks(t, runID) {
		if task.Stage == queue.StageAudio {
			return task
		}
	}
	t.Fatalf("no audio task for run %s", runID)
	return queue.Task{}
}
