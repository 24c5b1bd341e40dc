package api

import (
	"maps"
	"slices"
	"time"

	"montage/internal/deps"
	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/workflow"
)

// FromRun converts a run record to its API representation.
func FromRun(run *queue.Run) Run {
	if run == nil {
		return Run{}
	}
	dto := Run{
		ID:            run.ID,
		Title:         run.Title,
		Description:   run.Description,
		Style:         run.Style,
		Status:        string(run.Status),
		ScriptContent: run.ScriptContent,
		BGMRef:        run.BGMRef,
		AudioURL:      run.AudioURL,
		FinalVideoURL: run.FinalVideoURL,
		Degraded:      run.Degraded,
		CreatedAt:     formatTime(run.CreatedAt),
		UpdatedAt:     formatTime(run.UpdatedAt),
	}
	if run.Status == queue.StatusFailed || run.ErrorLog != "" {
		dto.Failure = &Failure{
			Stage:     run.ErrorStep,
			TaskID:    run.ErrorTaskID,
			RequestID: run.ErrorRequestID,
			Summary:   services.FirstLine(run.ErrorLog),
			Log:       run.ErrorLog,
		}
		if run.ErrorAt != nil {
			dto.Failure.At = formatTime(*run.ErrorAt)
		}
	}
	return dto
}

// FromRunDetail converts a run together with its segments and tasks.
func FromRunDetail(run *queue.Run, segments []queue.Segment, tasks []queue.Task) Run {
	dto := FromRun(run)
	dto.Segments = FromSegments(segments)
	dto.Tasks = FromTasks(tasks)
	return dto
}

// FromRuns converts a slice of run records into API DTOs.
func FromRuns(runs []queue.Run) []Run {
	if len(runs) == 0 {
		return nil
	}
	out := make([]Run, 0, len(runs))
	for i := range runs {
		out = append(out, FromRun(&runs[i]))
	}
	return out
}

// FromSegments converts segment records.
func FromSegments(segments []queue.Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, Segment{
			ID:            seg.ID,
			Index:         seg.Index,
			VideoRef:      seg.VideoRef,
			StartSeconds:  seg.StartSeconds,
			Duration:      seg.Duration,
			NarrationText: seg.NarrationText,
			EmotionTag:    seg.EmotionTag,
			ShockScore:    seg.ShockScore,
			Cue:           seg.Cue,
			AudioDuration: seg.AudioDuration,
		})
	}
	return out
}

// FromTask converts a single task record.
func FromTask(task *queue.Task) Task {
	if task == nil {
		return Task{}
	}
	return Task{
		ID:        task.ID,
		Stage:     string(task.Stage),
		State:     string(task.State),
		Attempt:   task.Attempt,
		RequestID: task.RequestID,
		NotBefore: formatTime(task.NotBefore),
		LastError: task.LastError,
		CreatedAt: formatTime(task.CreatedAt),
	}
}

// FromTasks converts task records.
func FromTasks(tasks []queue.Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, 0, len(tasks))
	for i := range tasks {
		out = append(out, FromTask(&tasks[i]))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		Lanes:      summary.Lanes,
		LastError:  summary.LastError,
		QueueStats: StatsByName(summary.QueueStats),
	}
	if summary.LastRun != nil {
		run := FromRun(summary.LastRun)
		status.LastRun = &run
	}
	return status
}

// FromDependencies converts dependency probes.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	return out
}

// StatsByName keys run counts by status name, filling zero for every known status.
func StatsByName(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// SortedStatuses returns the status names of stats in forward stage order.
// Unknown names sort last, alphabetically.
func SortedStatuses(stats map[string]int) []string {
	rank := make(map[string]int)
	for i, status := range queue.AllStatuses() {
		rank[string(status)] = i
	}
	names := slices.Collect(maps.Keys(stats))
	slices.SortFunc(names, func(a, b string) int {
		ra, okA := rank[a]
		rb, okB := rank[b]
		switch {
		case okA && okB:
			return ra - rb
		case okA:
			return -1
		case okB:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return names
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
