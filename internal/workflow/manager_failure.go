package workflow

import (
	"context"
	"fmt"
	"strings"

	"montage/internal/logging"
	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/telemetry"
)

// failStage records the failure on the run and kills the task. MarkFailed
// leaves a COMPLETED run untouched.
func (m *Manager) failStage(ctx context.Context, exec *execution, stageErr error) error {
	if stageErr == nil {
		stageErr = services.Wrap(services.ErrTransient, string(exec.spec.Stage), "execute", "stage failed without error detail", nil)
	}
	m.setLastError(stageErr)

	marked, err := m.store.MarkFailed(ctx, exec.run.ID, queue.Failure{
		Stage:     exec.spec.Stage,
		TaskID:    exec.task.ID,
		RequestID: exec.task.RequestID,
		Trace:     failureTrace(exec, stageErr),
		At:        m.now(),
	})
	if err != nil {
		return err
	}
	if err := m.store.KillTask(ctx, exec.task.ID, services.Summary(stageErr)); err != nil {
		return err
	}
	exec.span.End(ctx, telemetry.OutcomeFailed, stageErr)

	if !marked {
		exec.logger.Info("stage failed after run completed; status kept",
			logging.Error(stageErr),
			logging.String(logging.FieldEventType, "failure_ignored"),
		)
		return nil
	}

	logging.ErrorWithContext(exec.logger, "stage failed", "run_failed",
		logging.Error(stageErr),
		logging.Alert("stage_failure"),
		logging.Int("attempt", exec.task.Attempt),
		logging.String(logging.FieldErrorHint, "fix the cause and run montage retry"),
	)
	run, err := m.store.GetRun(ctx, exec.run.ID)
	if err == nil && run != nil {
		m.setLastRun(run)
		m.notifyFailed(ctx, run, exec.spec.Stage, stageErr)
	}
	return nil
}

// failureTrace renders the stored error log: the error chain first so the run
// view can show its first line, then the task coordinates.
func failureTrace(exec *execution, stageErr error) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(stageErr.Error()))
	fmt.Fprintf(&b, "\nstage=%s task=%s request=%s attempt=%d lane=%s",
		exec.spec.Stage, exec.task.ID, exec.task.RequestID, exec.task.Attempt, exec.lane)
	if exec.task.LastError != "" {
		fmt.Fprintf(&b, "\nprevious attempt: %s", exec.task.LastError)
	}
	return b.String()
}
