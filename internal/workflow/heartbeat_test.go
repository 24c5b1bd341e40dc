package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"montage/internal/logging"
	"montage/internal/queue"
	"montage/internal/testsupport"
	"montage/internal/workflow"
)

func TestHeartbeatLoopSignalsLostLease(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "Lost lease")

	// Never claimed, so the task is not running and the first beat finds no lease.
	task, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageRender})
	require.NoError(t, err)

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), 5*time.Millisecond, time.Minute, nil)
	lost := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(ctx, &wg, task.ID, func() { close(lost) })

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("onLost was not called")
	}
	wg.Wait()
}

func TestHeartbeatLoopStopsOnCancel(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	run := testsupport.NewRun(t, store, "Cancelled")

	_, err := store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageRender})
	require.NoError(t, err)
	task, err := store.ClaimTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), 5*time.Millisecond, time.Minute, nil)
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(ctx, &wg, task.ID, func() { t.Error("lease should not be lost") })

	time.Sleep(30 * time.Millisecond)
	cancel()
	wg.Wait()
}
