package pipeline

import (
	"slices"

	"montage/internal/queue"
)

// Move is one conditional status write. An empty To leaves the status as it
// is and only checks that the run is in one of From.
type Move struct {
	From []queue.Status
	To   queue.Status
}

// Allows reports whether a run in status may take this move.
func (m Move) Allows(status queue.Status) bool {
	return slices.Contains(m.From, status)
}

// Spec describes how a stage moves the run.
type Spec struct {
	Stage      queue.Stage
	Entry      Move
	Completion Move
	// Next is the stage enqueued after a successful completion.
	Next queue.Stage
	// Gated stages wait for the operator before Next is enqueued, unless
	// auto approve is on.
	Gated bool
	// Resume is the status an operator retry resets a run failed in this
	// stage to.
	Resume queue.Status
}

var stageSpecs = map[queue.Stage]Spec{
	queue.StageAnalyze: {
		Stage:      queue.StageAnalyze,
		Entry:      Move{From: []queue.Status{queue.StatusUploading}, To: queue.StatusAnalyzing},
		Completion: Move{From: []queue.Status{queue.StatusUploading, queue.StatusAnalyzing}, To: queue.StatusReview},
		Next:       queue.StageScript,
		Gated:      true,
		Resume:     queue.StatusUploading,
	},
	queue.StageScript: {
		Stage:      queue.StageScript,
		Entry:      Move{From: []queue.Status{queue.StatusReview, queue.StatusScriptGenerated}},
		Completion: Move{From: []queue.Status{queue.StatusReview}, To: queue.StatusScriptGenerated},
		Next:       queue.StageAudio,
		Resume:     queue.StatusReview,
	},
	queue.StageAudio: {
		Stage:      queue.StageAudio,
		Entry:      Move{From: []queue.Status{queue.StatusScriptGenerated, queue.StatusAudioGenerating}, To: queue.StatusAudioGenerating},
		Completion: Move{From: []queue.Status{queue.StatusAudioGenerating}, To: queue.StatusAudioGenerated},
		Next:       queue.StageRender,
		Resume:     queue.StatusScriptGenerated,
	},
	queue.StageRender: {
		Stage:      queue.StageRender,
		Entry:      Move{From: []queue.Status{queue.StatusAudioGenerated, queue.StatusRendering}, To: queue.StatusRendering},
		Completion: Move{From: []queue.Status{queue.StatusRendering}, To: queue.StatusCompleted},
		Resume:     queue.StatusAudioGenerated,
	},
}

// SpecFor returns the table entry for stage.
func SpecFor(stage queue.Stage) (Spec, bool) {
	spec, ok := stageSpecs[stage]
	return spec, ok
}

// Duplicate reports whether a delivery whose entry move matched nothing can be
// acknowledged as a no-op because the run already moved past this stage.
func (s Spec) Duplicate(status queue.Status) bool {
	return status.AtOrAfter(s.Completion.To)
}

// Resumable reports whether a run in status is already inside the stage, for
// example after a retry or a reclaimed task.
func (s Spec) Resumable(status queue.Status) bool {
	if s.Entry.To == "" {
		return s.Entry.Allows(status)
	}
	return status == s.Entry.To
}
