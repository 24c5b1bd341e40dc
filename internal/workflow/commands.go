package workflow

import (
	"context"
	"fmt"
	"strings"

	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/queue"
	"montage/internal/services"
)

// Submit creates a run in UPLOADING and enqueues its analyze stage.
func (m *Manager) Submit(ctx context.Context, spec queue.NewRun) (*queue.Run, *queue.Task, error) {
	if strings.TrimSpace(spec.Title) == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "submit", "validate", "title is required", nil)
	}
	if len(spec.VideoRefs) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "submit", "validate", "at least one video clip is required", nil)
	}
	for i, ref := range spec.VideoRefs {
		if strings.TrimSpace(ref) == "" {
			return nil, nil, services.Wrap(services.ErrValidation, "submit", "validate", fmt.Sprintf("video %d has an empty reference", i+1), nil)
		}
	}
	run, err := m.store.CreateRun(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	task, err := m.store.EnqueueTask(ctx, queue.TaskSpec{RunID: run.ID, Stage: queue.StageAnalyze})
	if err != nil {
		return run, nil, err
	}
	m.logger.Info("run submitted",
		logging.String(logging.FieldRunID, run.ID),
		logging.String(logging.FieldRequestID, task.RequestID),
		logging.String(logging.FieldEventType, "run_submitted"),
		logging.Int("clips", len(spec.VideoRefs)),
	)
	return run, task, nil
}

// Approve releases a run waiting in REVIEW to the script stage. The script
// task reuses the request id of the analyze chain.
func (m *Manager) Approve(ctx context.Context, id string) (*queue.Task, error) {
	run, err := m.requireRun(ctx, "approve", id)
	if err != nil {
		return nil, err
	}
	if run.Status != queue.StatusReview {
		return nil, services.Wrap(services.ErrValidation, "approve", "check status",
			fmt.Sprintf("run %s is %s; only runs in %s can be approved", id, run.Status, queue.StatusReview), nil)
	}
	requestID, err := m.chainRequestID(ctx, id, queue.StageAnalyze)
	if err != nil {
		return nil, err
	}
	task, err := m.enqueueStage(ctx, id, queue.StageScript, requestID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrValidation, "approve", "enqueue", "script stage is already queued", nil)
	}
	m.logger.Info("run approved",
		logging.String(logging.FieldRunID, id),
		logging.String(logging.FieldRequestID, task.RequestID),
		logging.String(logging.FieldEventType, "run_approved"),
	)
	return task, nil
}

// Retry moves a FAILED run back to the status its failed stage starts from and
// enqueues that stage again.
func (m *Manager) Retry(ctx context.Context, id string) (*queue.Task, error) {
	run, err := m.requireRun(ctx, "retry", id)
	if err != nil {
		return nil, err
	}
	if run.Status != queue.StatusFailed {
		return nil, services.Wrap(services.ErrValidation, "retry", "check status",
			fmt.Sprintf("run %s is %s; only %s runs can be retried", id, run.Status, queue.StatusFailed), nil)
	}
	stage, ok := queue.ParseStage(run.ErrorStep)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "retry", "resolve stage",
			fmt.Sprintf("run %s has no recorded failing stage", id), nil)
	}
	spec, _ := pipeline.SpecFor(stage)
	requestID := run.ErrorRequestID

	reset, err := m.store.ResetFailed(ctx, id, spec.Resume)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, services.Wrap(services.ErrValidation, "retry", "reset", fmt.Sprintf("run %s changed status concurrently", id), nil)
	}
	task, err := m.store.EnqueueTask(ctx, queue.TaskSpec{RunID: id, Stage: stage, RequestID: requestID})
	if err != nil {
		return nil, err
	}
	m.logger.Info("run retried",
		logging.String(logging.FieldRunID, id),
		logging.String(logging.FieldStage, string(stage)),
		logging.String("resume_status", string(spec.Resume)),
		logging.String(logging.FieldRequestID, task.RequestID),
		logging.String(logging.FieldEventType, "run_retried"),
	)
	return task, nil
}

func (m *Manager) requireRun(ctx context.Context, op, id string) (*queue.Run, error) {
	run, err := m.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, op, "load run", fmt.Sprintf("run %s not found", id), nil)
	}
	return run, nil
}

// chainRequestID returns the request id of the newest task of stage for the
// run, or "" so a fresh one is generated.
func (m *Manager) chainRequestID(ctx context.Context, runID string, stage queue.Stage) (string, error) {
	tasks, err := m.store.ListTasks(ctx, runID)
	if err != nil {
		return "", err
	}
	for i := len(tasks) - 1; i >= 0; i-- {
		if tasks[i].Stage == stage {
			return tasks[i].RequestID, nil
		}
	}
	return "", nil
}
