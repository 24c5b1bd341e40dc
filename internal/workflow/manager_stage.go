package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/telemetry"
)

// execution carries one claimed task through its stage.
type execution struct {
	lane   string
	task   *queue.Task
	spec   pipeline.Spec
	run    *queue.Run
	logger *slog.Logger
	span   *telemetry.StageSpan
	start  time.Time
}

func (m *Manager) processTask(ctx context.Context, lane string, task *queue.Task) error {
	ctx = withTaskContext(ctx, lane, task)
	logger := m.taskLogger(ctx, lane)

	spec, ok := pipeline.SpecFor(task.Stage)
	if !ok {
		logger.Warn("dropping task for unknown stage", logging.String(logging.FieldEventType, "task_unknown_stage"))
		return m.store.KillTask(ctx, task.ID, fmt.Sprintf("unknown stage %q", task.Stage))
	}
	handler, ok := m.handlerFor(task.Stage)
	if !ok {
		logging.WarnWithContext(logger, "no handler registered for stage", "task_unhandled",
			logging.String(logging.FieldErrorHint, "register every pipeline stage before starting the workflow"),
		)
		return m.store.KillTask(ctx, task.ID, "no handler registered for stage")
	}

	run, err := m.store.GetRun(ctx, task.RunID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		logger.Warn("dropping task for missing run", logging.String(logging.FieldEventType, "task_orphaned"))
		return m.store.KillTask(ctx, task.ID, "run not found")
	}

	exec := &execution{lane: lane, task: task, spec: spec, run: run, logger: logger}
	entered, err := m.enterStage(ctx, spec, run)
	if err != nil {
		return err
	}
	if !entered {
		return m.rejectDelivery(ctx, exec)
	}

	run, err = m.store.GetRun(ctx, task.RunID)
	if err != nil {
		return fmt.Errorf("reload run: %w", err)
	}
	if run == nil {
		return m.store.KillTask(ctx, task.ID, "run not found")
	}
	exec.run = run
	m.setLastRun(run)

	ctx, exec.span = m.recorder.StartStage(ctx, run.ID, string(task.Stage), task.Attempt)
	exec.start = time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("status", string(run.Status)),
		logging.Int("attempt", task.Attempt),
		logging.String("title", run.Title),
	)

	result, lost := m.executeWithHeartbeat(ctx, handler, task.ID, run)
	if lost {
		exec.span.End(context.WithoutCancel(ctx), telemetry.OutcomeRetry, queue.ErrTaskLost)
		return nil
	}
	if ctx.Err() != nil && result.Outcome != pipeline.OutcomeDone {
		logger.Debug("stage interrupted by shutdown")
		exec.span.End(context.WithoutCancel(ctx), telemetry.OutcomeRetry, ctx.Err())
		return ctx.Err()
	}

	switch result.Outcome {
	case pipeline.OutcomeDone:
		return m.completeStage(ctx, exec, result.State)
	case pipeline.OutcomeRetry:
		return m.retryStage(ctx, exec, result.Err)
	default:
		return m.failStage(ctx, exec, result.Err)
	}
}

// enterStage applies the stage's entry move. A run already inside the stage
// (a retried or reclaimed task) enters without a write.
func (m *Manager) enterStage(ctx context.Context, spec pipeline.Spec, run *queue.Run) (bool, error) {
	if spec.Resumable(run.Status) {
		return true, nil
	}
	if spec.Entry.To == "" {
		return false, nil
	}
	moved, err := m.store.Transition(ctx, run.ID, spec.Entry.To, spec.Entry.From...)
	if err != nil {
		return false, fmt.Errorf("enter stage %s: %w", spec.Stage, err)
	}
	return moved, nil
}

// rejectDelivery settles a task whose run is not where the stage expects it.
func (m *Manager) rejectDelivery(ctx context.Context, exec *execution) error {
	current, err := m.store.GetRun(ctx, exec.task.RunID)
	if err != nil {
		return fmt.Errorf("reload run: %w", err)
	}
	status := exec.run.Status
	if current != nil {
		status = current.Status
	}
	switch {
	case current == nil:
		return m.store.KillTask(ctx, exec.task.ID, "run not found")
	case status == queue.StatusFailed:
		exec.logger.Info("skipping task for failed run",
			logging.String(logging.FieldEventType, "task_skipped"),
		)
		return m.store.KillTask(ctx, exec.task.ID, "run is FAILED")
	case exec.spec.Duplicate(status):
		exec.logger.Info("duplicate delivery acknowledged",
			logging.String(logging.FieldEventType, "stage_duplicate"),
			logging.String("status", string(status)),
		)
		_, span := m.recorder.StartStage(ctx, current.ID, string(exec.task.Stage), exec.task.Attempt)
		span.End(ctx, telemetry.OutcomeDuplicate, nil)
		return m.store.CompleteTask(ctx, exec.task.ID)
	default:
		logging.WarnWithContext(exec.logger, "run is not ready for stage", "stage_out_of_order",
			logging.String("status", string(status)),
			logging.String(logging.FieldImpact, "task dropped; use montage retry or approve to continue the run"),
		)
		return m.store.KillTask(ctx, exec.task.ID, fmt.Sprintf("run is %s", status))
	}
}

// executeWithHeartbeat runs the handler while keeping its task lease alive.
// lost reports that the lease was reclaimed mid-run; the result must then be
// discarded because another lane may already be executing the task.
func (m *Manager) executeWithHeartbeat(ctx context.Context, handler pipeline.Handler, taskID string, run *queue.Run) (result pipeline.Result, lost bool) {
	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, taskID, func() { cancelRun(queue.ErrTaskLost) })
	defer func() {
		hbCancel()
		hbWG.Wait()
		lost = errors.Is(context.Cause(runCtx), queue.ErrTaskLost)
	}()
	defer func() {
		if r := recover(); r != nil {
			result = pipeline.Retry(services.Wrap(services.ErrTransient, string(handler.Stage()), "execute", "handler panicked", fmt.Errorf("%v", r)))
		}
	}()
	return handler.Handle(runCtx, run), false
}

func (m *Manager) completeStage(ctx context.Context, exec *execution, state pipeline.State) error {
	spec := exec.spec
	if state == nil || state.Status() != spec.Completion.To {
		got := queue.Status("")
		if state != nil {
			got = state.Status()
		}
		return m.failStage(ctx, exec, services.Wrap(services.ErrValidation, string(spec.Stage), "complete",
			fmt.Sprintf("handler reported %q, stage completes to %q", got, spec.Completion.To), nil))
	}

	moved, err := m.store.Transition(ctx, exec.run.ID, spec.Completion.To, spec.Completion.From...)
	if err != nil {
		return fmt.Errorf("complete stage %s: %w", spec.Stage, err)
	}
	if !moved {
		current, err := m.store.GetRun(ctx, exec.run.ID)
		if err != nil {
			return fmt.Errorf("reload run: %w", err)
		}
		if current == nil || !current.Status.AtOrAfter(spec.Completion.To) {
			status := queue.Status("")
			if current != nil {
				status = current.Status
			}
			logging.WarnWithContext(exec.logger, "run left the stage before completion", "stage_completion_lost",
				logging.String("status", string(status)),
			)
			exec.span.End(ctx, telemetry.OutcomeFailed, nil)
			return m.store.KillTask(ctx, exec.task.ID, fmt.Sprintf("run moved to %s during stage", status))
		}
	}

	if err := m.store.CompleteTask(ctx, exec.task.ID); err != nil {
		return err
	}
	exec.span.End(ctx, telemetry.OutcomeDone, nil)
	exec.logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(spec.Completion.To)),
		logging.Duration("stage_duration", time.Since(exec.start)),
	)

	if rendering, ok := state.(pipeline.RenderingState); ok {
		m.recorder.DegradedSegments(ctx, countDegraded(rendering.Narrations))
	}

	if spec.Next != "" {
		if spec.Gated && !m.cfg.Workflow.AutoApprove {
			exec.logger.Info("run awaiting approval",
				logging.String(logging.FieldEventType, "review_pending"),
				logging.String("next_stage", string(spec.Next)),
			)
		} else if _, err := m.enqueueStage(ctx, exec.run.ID, spec.Next, exec.task.RequestID); err != nil {
			return err
		}
	}

	if completed, ok := state.(pipeline.CompletedState); ok {
		run, err := m.store.GetRun(ctx, exec.run.ID)
		if err == nil && run != nil {
			m.setLastRun(run)
			m.notifyCompleted(ctx, run, completed)
		}
	}
	return nil
}

func (m *Manager) retryStage(ctx context.Context, exec *execution, stageErr error) error {
	policy := pipeline.PolicyFor(m.cfg, exec.spec.Stage)
	delay, ok := policy.Next(exec.task.Attempt)
	if !ok {
		return m.failStage(ctx, exec, fmt.Errorf("retry budget of %d exhausted: %w", policy.MaxAttempts, stageErr))
	}
	notBefore := m.now().Add(delay)
	if err := m.store.RequeueTask(ctx, exec.task.ID, notBefore, services.Summary(stageErr)); err != nil {
		return err
	}
	exec.span.End(ctx, telemetry.OutcomeRetry, stageErr)
	m.setLastError(stageErr)
	exec.logger.Warn("stage failed; retry scheduled",
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_retry"),
		logging.Int("attempt", exec.task.Attempt+1),
		logging.Int("max_attempts", policy.MaxAttempts),
		logging.Duration("delay", delay),
		logging.String(logging.FieldErrorHint, errorHint(stageErr)),
	)
	return nil
}

// enqueueStage adds a pending task unless one is already open for the run and
// stage. It returns the new task, or nil when one was already open.
func (m *Manager) enqueueStage(ctx context.Context, runID string, stage queue.Stage, requestID string) (*queue.Task, error) {
	open, err := m.store.HasOpenTask(ctx, runID, stage)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil
	}
	return m.store.EnqueueTask(ctx, queue.TaskSpec{RunID: runID, Stage: stage, RequestID: requestID})
}

func countDegraded(narrations []pipeline.Narration) int {
	count := 0
	for _, n := range narrations {
		if n.Degraded {
			count++
		}
	}
	return count
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrExternalTool):
		return "check the ffmpeg and ffprobe installation"
	case errors.Is(err, services.ErrTimeout):
		return "the speech provider or media tool timed out"
	case errors.Is(err, services.ErrMediaValidation):
		return "inspect the source clip with ffprobe"
	default:
		return "the task will retry automatically"
	}
}
