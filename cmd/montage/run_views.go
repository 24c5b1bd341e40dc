package main

import (
	"fmt"
	"strconv"
	"strings"

	"montage/internal/api"
)

func buildRunListRows(runs []api.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		video := run.FinalVideoURL
		if video == "" {
			video = "-"
		}
		status := run.Status
		if run.Degraded {
			status += " (degraded)"
		}
		rows = append(rows, []string{run.ID, truncate(run.Title, 40), status, run.CreatedAt, video})
	}
	return rows
}

func renderRunDetail(run api.Run, fullLog bool) string {
	var b strings.Builder
	fmt.Fprint(&b, renderKeyValues([][2]string{
		{"ID", run.ID},
		{"Title", run.Title},
		{"Status", run.Status},
		{"Style", orDash(run.Style)},
		{"Background music", orDash(run.BGMRef)},
		{"Narration audio", orDash(run.AudioURL)},
		{"Final video", orDash(run.FinalVideoURL)},
		{"Degraded", yesNo(run.Degraded)},
		{"Created", run.CreatedAt},
		{"Updated", run.UpdatedAt},
	}))
	b.WriteString("\n")

	if failure := run.Failure; failure != nil {
		b.WriteString("\nFailure\n")
		fmt.Fprint(&b, renderKeyValues([][2]string{
			{"Stage", orDash(failure.Stage)},
			{"Task", orDash(failure.TaskID)},
			{"Request", orDash(failure.RequestID)},
			{"At", orDash(failure.At)},
			{"Error", failure.Summary},
		}))
		b.WriteString("\n")
		if fullLog && strings.TrimSpace(failure.Log) != "" {
			b.WriteString(failure.Log)
			if !strings.HasSuffix(failure.Log, "\n") {
				b.WriteString("\n")
			}
		}
	}

	if len(run.Segments) > 0 {
		rows := make([][]string, 0, len(run.Segments))
		for _, seg := range run.Segments {
			audio := "-"
			if seg.AudioDuration > 0 {
				audio = formatSeconds(seg.AudioDuration)
			}
			rows = append(rows, []string{
				strconv.Itoa(seg.Index),
				formatSeconds(seg.StartSeconds),
				formatSeconds(seg.Duration),
				audio,
				orDash(seg.EmotionTag),
				truncate(seg.NarrationText, 48),
			})
		}
		b.WriteString("\nSegments\n")
		b.WriteString(renderTable(
			[]string{"#", "Start", "Duration", "Audio", "Emotion", "Narration"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
		))
		b.WriteString("\n")
	}

	if len(run.Tasks) > 0 {
		rows := make([][]string, 0, len(run.Tasks))
		for _, task := range run.Tasks {
			rows = append(rows, []string{
				task.ID,
				task.Stage,
				task.State,
				strconv.Itoa(task.Attempt),
				truncate(task.LastError, 48),
			})
		}
		b.WriteString("\nTasks\n")
		b.WriteString(renderTable(
			[]string{"ID", "Stage", "State", "Attempt", "Last error"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
		b.WriteString("\n")
	}
	return b.String()
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64) + "s"
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
