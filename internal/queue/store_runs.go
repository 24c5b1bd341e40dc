package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateRun inserts a run in UPLOADING together with its source clips.
func (s *Store) CreateRun(ctx context.Context, spec NewRun) (*Run, error) {
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		return nil, errors.New("create run: title is required")
	}
	if len(spec.VideoRefs) == 0 {
		return nil, errors.New("create run: at least one video is required")
	}

	id := uuid.NewString()
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, title, description, style, status, bgm_ref, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, title, nullableString(spec.Description), nullableString(spec.Style),
			StatusUploading, nullableString(spec.BGMRef), now, now,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for i, ref := range spec.VideoRefs {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				return fmt.Errorf("video %d: empty reference", i+1)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO video_assets (id, run_id, ref, sort_order) VALUES (?, ?, ?, ?)`,
				uuid.NewString(), id, ref, i,
			); err != nil {
				return fmt.Errorf("insert video asset: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun fetches a run by id. A missing run yields (nil, nil).
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *Store) ListRuns(ctx context.Context, statuses ...Status) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Transition moves the run to `to` only when its current status is one of
// `from`. It reports whether a row changed; false means the write lost against
// a duplicate or out-of-order delivery.
func (s *Store) Transition(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition: no expected predecessor status")
	}
	args := make([]any, 0, len(from)+3)
	args = append(args, to, s.timestamp(), id)
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition run %s to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed records the failure context and moves the run to FAILED unless it
// has already COMPLETED.
func (s *Store) MarkFailed(ctx context.Context, id string, failure Failure) (bool, error) {
	at := failure.At
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs
         SET status = ?, error_log = ?, error_step = ?, error_task_id = ?, error_request_id = ?,
             error_at = ?, updated_at = ?
         WHERE id = ? AND status != ?`,
		StatusFailed,
		truncateRunes(failure.Trace, maxErrorLogChars),
		nullableString(truncateRunes(string(failure.Stage), maxStepChars)),
		nullableString(truncateRunes(failure.TaskID, maxIdentChars)),
		nullableString(truncateRunes(failure.RequestID, maxIdentChars)),
		formatTime(at),
		s.timestamp(),
		id,
		StatusCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("mark run %s failed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResetFailed moves a FAILED run back to `to` and clears its error fields.
func (s *Store) ResetFailed(ctx context.Context, id string, to Status) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs
         SET status = ?, error_log = NULL, error_step = NULL, error_task_id = NULL,
             error_request_id = NULL, error_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		to, s.timestamp(), id, StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reset failed run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetScript stores the generated script for the run.
func (s *Store) SetScript(ctx context.Context, id, script string) error {
	return s.updateRunColumn(ctx, id, "script_content", nullableString(script))
}

// SetBGMRef stores the selected background music reference.
func (s *Store) SetBGMRef(ctx context.Context, id, ref string) error {
	return s.updateRunColumn(ctx, id, "bgm_ref", nullableString(ref))
}

// SetAudioURL stores the narration preview URL.
func (s *Store) SetAudioURL(ctx context.Context, id, url string) error {
	return s.updateRunColumn(ctx, id, "audio_url", nullableString(url))
}

// SetFinalVideo stores the rendered output URL and whether any part of it was degraded.
func (s *Store) SetFinalVideo(ctx context.Context, id, url string, degraded bool) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET final_video_url = ?, degraded = ?, updated_at = ? WHERE id = ?`,
		nullableString(url), boolToInt(degraded), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("set final video: %w", err)
	}
	return nil
}

func (s *Store) updateRunColumn(ctx context.Context, id, column string, value any) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("update run %s: %w", column, err)
	}
	return nil
}
