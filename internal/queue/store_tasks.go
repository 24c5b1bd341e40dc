package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueueTask inserts a pending stage task. A missing request id is generated
// so every retry of the chain can be correlated.
func (s *Store) EnqueueTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	if spec.RunID == "" {
		return nil, errors.New("enqueue task: run id is required")
	}
	if _, ok := ParseStage(string(spec.Stage)); !ok {
		return nil, fmt.Errorf("enqueue task: unknown stage %q", spec.Stage)
	}
	requestID := spec.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	notBefore := spec.NotBefore
	if notBefore.IsZero() {
		notBefore = s.now()
	}
	id := uuid.NewString()
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO stage_tasks (id, run_id, stage, attempt, state, not_before, request_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, spec.RunID, spec.Stage, spec.Attempt, TaskPending, formatTime(notBefore), requestID, now, now,
	); err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask fetches a task by id. A missing task yields (nil, nil).
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM stage_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// ClaimTask atomically moves the oldest due pending task to running and returns
// it. It returns (nil, nil) when nothing is due.
func (s *Store) ClaimTask(ctx context.Context) (*Task, error) {
	ctx = ensureContext(ctx)
	now := s.timestamp()
	var (
		task Task
		err  error
	)
	retryErr := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE stage_tasks
             SET state = ?, heartbeat_at = ?, updated_at = ?
             WHERE id = (
                 SELECT id FROM stage_tasks
                 WHERE state = ? AND not_before <= ?
                 ORDER BY not_before, created_at
                 LIMIT 1
             ) AND state = ?
             RETURNING `+taskColumns,
			TaskRunning, now, now, TaskPending, now, TaskPending,
		)
		task, err = scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if retryErr != nil {
		return nil, fmt.Errorf("claim task: %w", retryErr)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &task, nil
}

// ErrTaskLost is returned by HeartbeatTask once the task is no longer running,
// typically because ReclaimStaleTasks handed it back to the queue.
var ErrTaskLost = errors.New("task lease lost")

// HeartbeatTask refreshes the heartbeat of a running task.
func (s *Store) HeartbeatTask(ctx context.Context, id string) error {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE stage_tasks SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND state = ?`,
		now, now, id, TaskRunning,
	)
	if err != nil {
		return fmt.Errorf("heartbeat task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTaskLost
	}
	return nil
}

// CompleteTask marks a task done.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	return s.finishTask(ctx, id, TaskDone, "")
}

// KillTask marks a task dead with its final error.
func (s *Store) KillTask(ctx context.Context, id, lastError string) error {
	return s.finishTask(ctx, id, TaskDead, lastError)
}

func (s *Store) finishTask(ctx context.Context, id string, state TaskState, lastError string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE stage_tasks SET state = ?, last_error = COALESCE(?, last_error), heartbeat_at = NULL, updated_at = ?
         WHERE id = ?`,
		state, nullableString(truncateRunes(lastError, maxErrorLogChars)), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return nil
}

// RequeueTask puts a task back to pending with an incremented attempt count,
// due no earlier than notBefore.
func (s *Store) RequeueTask(ctx context.Context, id string, notBefore time.Time, lastError string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE stage_tasks
         SET state = ?, attempt = attempt + 1, not_before = ?, last_error = ?, heartbeat_at = NULL, updated_at = ?
         WHERE id = ?`,
		TaskPending, formatTime(notBefore), nullableString(truncateRunes(lastError, maxErrorLogChars)),
		s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	return nil
}

// ReclaimStaleTasks returns running tasks whose heartbeat is older than cutoff to pending.
func (s *Store) ReclaimStaleTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE stage_tasks
         SET state = ?, heartbeat_at = NULL, not_before = ?, updated_at = ?
         WHERE state = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		TaskPending, now, now, TaskRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunningTasks returns every running task to pending. The daemon calls it
// at startup, when no lane can still own a task.
func (s *Store) ResetRunningTasks(ctx context.Context) (int64, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE stage_tasks SET state = ?, heartbeat_at = NULL, updated_at = ? WHERE state = ?`,
		TaskPending, now, TaskRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	return res.RowsAffected()
}

// HasOpenTask reports whether a pending or running task exists for the run and stage.
func (s *Store) HasOpenTask(ctx context.Context, runID string, stage Stage) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM stage_tasks WHERE run_id = ? AND stage = ? AND state IN (?, ?)`,
		runID, stage, TaskPending, TaskRunning,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("count open tasks: %w", err)
	}
	return count > 0, nil
}

// ListTasks returns the run's tasks oldest first.
func (s *Store) ListTasks(ctx context.Context, runID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM stage_tasks WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
