package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/notifications"
	"montage/internal/pipeline"
	"montage/internal/queue"
	"montage/internal/testsupport"
	"montage/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if n.last == nil {
		n.last = make(map[notifications.Event]notifications.Payload)
	}
	n.last[event] = payload
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...)
}

func (n *recordingNotifier) Payload(event notifications.Event) notifications.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last[event]
}

// fakeClock is shared by the store and the manager.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubHandler completes its stage unless fn says otherwise.
type stubHandler struct {
	stage queue.Stage
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, run *queue.Run, call int) pipeline.Result
}

func (h *stubHandler) Stage() queue.Stage { return h.stage }

func (h *stubHandler) Handle(ctx context.Context, run *queue.Run) pipeline.Result {
	h.mu.Lock()
	h.calls++
	call := h.calls
	fn := h.fn
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, run, call)
	}
	return completion(h.stage, run.ID)
}

func (h *stubHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *stubHandler) Set(fn func(ctx context.Context, run *queue.Run, call int) pipeline.Result) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

func completion(stage queue.Stage, runID string) pipeline.Result {
	switch stage {
	case queue.StageAnalyze:
		return pipeline.Done(pipeline.ScriptState{RunID: runID})
	case queue.StageScript:
		return pipeline.Done(pipeline.AudioState{RunID: runID})
	case queue.StageAudio:
		return pipeline.Done(pipeline.RenderingState{RunID: runID})
	default:
		return pipeline.Done(pipeline.CompletedState{RunID: runID, VideoURL: "http://media.test/runs/" + runID + "/final.mp4"})
	}
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	clock    *fakeClock
	notifier *recordingNotifier
	manager  *workflow.Manager
	handlers map[queue.Stage]*stubHandler
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	require.NoError(t, cfg.EnsureDirectories())
	store := testsupport.MustOpenStore(t, cfg)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)
	notifier := &recordingNotifier{}

	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithNotifier(notifier),
		workflow.WithClock(clock.Now),
	)
	handlers := make(map[queue.Stage]*stubHandler)
	registered := make([]pipeline.Handler, 0, 4)
	for _, stage := range queue.AllStages() {
		h := &stubHandler{stage: stage}
		handlers[stage] = h
		registered = append(registered, h)
	}
	manager.ConfigureStages(registered...)
	return &harness{cfg: cfg, store: store, clock: clock, notifier: notifier, manager: manager, handlers: handlers}
}

func (h *harness) submit(t *testing.T, title string) *queue.Run {
	t.Helper()
	run, _, err := h.manager.Submit(context.Background(), queue.NewRun{Title: title, VideoRefs: []string{"clip-1.mp4"}})
	require.NoError(t, err)
	return run
}

func (h *harness) drain(t *testing.T) int {
	t.Helper()
	n, err := h.manager.Drain(context.Background())
	require.NoError(t, err)
	return n
}

func (h *harness) run(t *testing.T, id string) *queue.Run {
	t.Helper()
	run, err := h.store.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func (h *harness) tasks(t *testing.T, id string) []queue.Task {
	t.Helper()
	tasks, err := h.store.ListTasks(context.Background(), id)
	require.NoError(t, err)
	return tasks
}
