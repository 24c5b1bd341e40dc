package queue

import (
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"
)

// timeLayout has a fixed-width fraction so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = "id, title, description, style, status, script_content, bgm_ref, audio_url, final_video_url, degraded, error_log, error_step, error_task_id, error_request_id, error_at, created_at, updated_at"

func scanRun(scanner rowScanner) (Run, error) {
	var (
		run            Run
		status         string
		description    sql.NullString
		style          sql.NullString
		script         sql.NullString
		bgm            sql.NullString
		audioURL       sql.NullString
		finalURL       sql.NullString
		degraded       int
		errorLog       sql.NullString
		errorStep      sql.NullString
		errorTaskID    sql.NullString
		errorRequestID sql.NullString
		errorAt        sql.NullString
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Title,
		&description,
		&style,
		&status,
		&script,
		&bgm,
		&audioURL,
		&finalURL,
		&degraded,
		&errorLog,
		&errorStep,
		&errorTaskID,
		&errorRequestID,
		&errorAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return Run{}, err
	}
	run.Description = description.String
	run.Style = style.String
	run.Status = Status(status)
	run.ScriptContent = script.String
	run.BGMRef = bgm.String
	run.AudioURL = audioURL.String
	run.FinalVideoURL = finalURL.String
	run.Degraded = degraded != 0
	run.ErrorLog = errorLog.String
	run.ErrorStep = errorStep.String
	run.ErrorTaskID = errorTaskID.String
	run.ErrorRequestID = errorRequestID.String
	run.ErrorAt = parseNullTime(errorAt)
	run.CreatedAt, _ = parseTimeString(createdRaw)
	run.UpdatedAt, _ = parseTimeString(updatedRaw)
	return run, nil
}

const segmentColumns = "id, run_id, idx, asset_id, video_ref, start_seconds, natural_duration, narration_text, emotion_tag, shock_score, cue, audio_ref, audio_duration"

func scanSegment(scanner rowScanner) (Segment, error) {
	var (
		seg       Segment
		assetID   sql.NullString
		narration sql.NullString
		emotion   sql.NullString
		cue       sql.NullString
		audioRef  sql.NullString
	)
	if err := scanner.Scan(
		&seg.ID,
		&seg.RunID,
		&seg.Index,
		&assetID,
		&seg.VideoRef,
		&seg.StartSeconds,
		&seg.Duration,
		&narration,
		&emotion,
		&seg.ShockScore,
		&cue,
		&audioRef,
		&seg.AudioDuration,
	); err != nil {
		return Segment{}, err
	}
	seg.AssetID = assetID.String
	seg.NarrationText = narration.String
	seg.EmotionTag = emotion.String
	seg.Cue = cue.String
	seg.AudioRef = audioRef.String
	if seg.Duration <= 0 {
		seg.Duration = DefaultSegmentDuration
	}
	return seg, nil
}

const assetColumns = "id, run_id, ref, sort_order"

func scanAsset(scanner rowScanner) (VideoAsset, error) {
	var asset VideoAsset
	if err := scanner.Scan(&asset.ID, &asset.RunID, &asset.Ref, &asset.SortOrder); err != nil {
		return VideoAsset{}, err
	}
	return asset, nil
}

const taskColumns = "id, run_id, stage, attempt, state, not_before, request_id, last_error, heartbeat_at, created_at, updated_at"

func scanTask(scanner rowScanner) (Task, error) {
	var (
		task        Task
		stage       string
		state       string
		notBefore   string
		lastError   sql.NullString
		heartbeatAt sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&task.ID,
		&task.RunID,
		&stage,
		&task.Attempt,
		&state,
		&notBefore,
		&task.RequestID,
		&lastError,
		&heartbeatAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return Task{}, err
	}
	task.Stage = Stage(stage)
	task.State = TaskState(state)
	task.NotBefore, _ = parseTimeString(notBefore)
	task.LastError = lastError.String
	task.HeartbeatAt = parseNullTime(heartbeatAt)
	task.CreatedAt, _ = parseTimeString(createdRaw)
	task.UpdatedAt, _ = parseTimeString(updatedRaw)
	return task, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// truncateRunes cuts value to at most limit runes.
func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
