package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/preflight"
	"montage/internal/queue"
	"montage/internal/testsupport"
	"montage/internal/workflow"
)

// idleHandler retries every task; lanes only need a registered stage.
type idleHandler struct{ stage queue.Stage }

func (h idleHandler) Stage() queue.Stage { return h.stage }

func (h idleHandler) Handle(context.Context, *queue.Run) pipeline.Result {
	return pipeline.Retry(context.Canceled)
}

func passingChecks(context.Context, *config.Config) []preflight.Result {
	return []preflight.Result{{Name: "stub", Passed: true}}
}

func newTestDaemon(t *testing.T, edit func(*config.Config), opts ...Option) (*Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if edit != nil {
		edit(cfg)
	}
	require.NoError(t, cfg.EnsureDirectories())
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(idleHandler{stage: queue.StageAnalyze})

	opts = append([]Option{WithChecks(passingChecks)}, opts...)
	d, err := New(cfg, store, logging.NewNop(), mgr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Stop() })
	return d, store
}

func serve(t *testing.T, d *Daemon, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	d.api.router.ServeHTTP(w, req)
	return w
}

func TestAPICreateListDescribe(t *testing.T) {
	d, _ := newTestDaemon(t, nil)

	w := serve(t, d, http.MethodPost, "/api/runs", api.CreateRunRequest{
		Title:     "harbor house",
		Style:     "cozy",
		VideoRefs: []string{"terrace.mp4", "bedroom.mp4"},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created api.CreateRunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "UPLOADING", created.Run.Status)
	assert.Equal(t, "analyze", created.Task.Stage)
	assert.NotEmpty(t, created.Task.RequestID)

	w = serve(t, d, http.MethodGet, "/api/runs?status=uploading", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list api.RunListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, created.Run.ID, list.Runs[0].ID)

	w = serve(t, d, http.MethodGet, "/api/runs/"+created.Run.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail api.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "harbor house", detail.Run.Title)
	require.Len(t, detail.Run.Tasks, 1)
	assert.Equal(t, "pending", detail.Run.Tasks[0].State)
}

func TestAPIErrorMapping(t *testing.T) {
	d, store := newTestDaemon(t, nil)
	run := testsupport.NewRun(t, store, "waiting")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown run", http.MethodGet, "/api/runs/missing", nil, http.StatusNotFound},
		{"unknown status filter", http.MethodGet, "/api/runs?status=SIDEWAYS", nil, http.StatusBadRequest},
		{"approve outside review", http.MethodPost, "/api/runs/" + run.ID + "/approve", nil, http.StatusConflict},
		{"retry a run that did not fail", http.MethodPost, "/api/runs/" + run.ID + "/retry", nil, http.StatusConflict},
		{"approve unknown run", http.MethodPost, "/api/runs/missing/approve", nil, http.StatusNotFound},
		{"create without clips", http.MethodPost, "/api/runs", api.CreateRunRequest{Title: "empty"}, http.StatusBadRequest},
		{"create with unknown field", http.MethodPost, "/api/runs", map[string]string{"titel": "typo"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, d, tc.method, tc.path, tc.body, "")
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAPIApproveQueuesScript(t *testing.T) {
	d, store := newTestDaemon(t, nil)
	run := testsupport.NewRun(t, store, "reviewed")
	testsupport.MustTransition(t, store, run.ID, queue.StatusAnalyzing, queue.StatusReview)

	w := serve(t, d, http.MethodPost, "/api/runs/"+run.ID+"/approve", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp api.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "script", resp.Task.Stage)

	w = serve(t, d, http.MethodPost, "/api/runs/"+run.ID+"/approve", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code, "second approval finds the script task already queued")
}

func TestAPIRequiresToken(t *testing.T) {
	d, _ := newTestDaemon(t, func(cfg *config.Config) { cfg.API.Token = "s3cret" })

	assert.Equal(t, http.StatusUnauthorized, serve(t, d, http.MethodGet, "/api/runs", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(t, d, http.MethodGet, "/api/runs", nil, "wrong").Code)
	assert.Equal(t, http.StatusOK, serve(t, d, http.MethodGet, "/api/runs", nil, "s3cret").Code)
	assert.Equal(t, http.StatusOK, serve(t, d, http.MethodGet, "/healthz", nil, "").Code, "health stays open")
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t, nil)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	status := d.Status(ctx)
	assert.True(t, status.Running)
	assert.True(t, status.Workflow.Running)
	assert.NotEmpty(t, status.APIAddress)

	client := api.NewClient(d.APIAddress(), "")
	require.NoError(t, client.Health(ctx))
	remote, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, remote.Running)

	assert.Error(t, d.Start(ctx), "second start is rejected")

	d.Stop()
	assert.False(t, d.Status(ctx).Running)
	assert.Empty(t, d.APIAddress())

	require.NoError(t, d.Start(ctx), "daemon restarts after stop")
	d.Stop()
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	first, _ := newTestDaemon(t, nil)
	require.NoError(t, first.Start(context.Background()))

	cfg := *first.cfg
	store := testsupport.MustOpenStore(t, &cfg)
	mgr := workflow.NewManager(&cfg, store, logging.NewNop())
	mgr.ConfigureStages(idleHandler{stage: queue.StageAnalyze})
	second, err := New(&cfg, store, logging.NewNop(), mgr, WithChecks(passingChecks))
	require.NoError(t, err)

	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestDaemonRefusesToStartWhenChecksFail(t *testing.T) {
	d, _ := newTestDaemon(t, nil, WithChecks(func(context.Context, *config.Config) []preflight.Result {
		return []preflight.Result{
			{Name: "FFmpeg", Passed: false, Detail: "not found"},
			{Name: "Work directory", Passed: true},
		}
	}))

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FFmpeg")
	assert.False(t, d.Status(context.Background()).Running)

	ok, lockErr := d.lock.TryLock()
	require.NoError(t, lockErr)
	assert.True(t, ok, "failed start releases the lock")
	require.NoError(t, d.lock.Unlock())
}

func TestDaemonStartRequeuesRunningTasks(t *testing.T) {
	d, store := newTestDaemon(t, nil)
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "crashed")
	// Scheduled in the future so the started lanes cannot pick it up again.
	later := time.Now().Add(time.Hour)
	_, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageAnalyze, NotBefore: later})
	require.NoError(t, err)
	store.SetClock(func() time.Time { return later.Add(time.Minute) })
	claimed, err := store.ClaimTask(ctx)
	store.SetClock(nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	d.checks = func(context.Context, *config.Config) []preflight.Result {
		task, err := store.GetTask(ctx, claimed.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskRunning, task.State, "checks run before the reset")
		return nil
	}
	require.NoError(t, d.Start(ctx))
	d.Stop()

	task, err := store.GetTask(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskPending, task.State)
}
