package pipeline

import "montage/internal/queue"

// State is the typed run state a stage hands back on success.
type State interface {
	Status() queue.Status
}

// AnalyzingState is a run whose clips are being split into segments.
type AnalyzingState struct {
	RunID  string
	Assets []queue.VideoAsset
}

func (AnalyzingState) Status() queue.Status { return queue.StatusAnalyzing }

// Complete records the analyzed segments and waits for review.
func (s AnalyzingState) Complete(segments []queue.Segment) ScriptState {
	return ScriptState{RunID: s.RunID, Segments: segments}
}

// ScriptState is a run awaiting or writing its narration script.
type ScriptState struct {
	RunID    string
	Segments []queue.Segment
}

func (ScriptState) Status() queue.Status { return queue.StatusReview }

// Complete attaches the script and its per-segment alignment.
func (s ScriptState) Complete(script string, scripts []queue.SegmentScript) AudioState {
	return AudioState{RunID: s.RunID, Script: script, Scripts: scripts}
}

// AudioState is a run with a script, ready for narration.
type AudioState struct {
	RunID   string
	Script  string
	Scripts []queue.SegmentScript
}

func (AudioState) Status() queue.Status { return queue.StatusScriptGenerated }

// Narration is the cached audio produced for one segment.
type Narration struct {
	SegmentID string
	Ref       string
	Duration  float64
	Degraded  bool
}

// Complete records the narration, the preview and the chosen music.
func (s AudioState) Complete(narrations []Narration, previewURL, bgmRef string) RenderingState {
	return RenderingState{RunID: s.RunID, Narrations: narrations, PreviewURL: previewURL, BGMRef: bgmRef}
}

// RenderingState is a run with narration, ready to render.
type RenderingState struct {
	RunID      string
	Narrations []Narration
	PreviewURL string
	BGMRef     string
}

func (RenderingState) Status() queue.Status { return queue.StatusAudioGenerated }

// Complete records the published output.
func (s RenderingState) Complete(videoURL string, degraded bool) CompletedState {
	return CompletedState{RunID: s.RunID, VideoURL: videoURL, Degraded: degraded}
}

// CompletedState is the final state of a run.
type CompletedState struct {
	RunID    string
	VideoURL string
	Degraded bool
}

func (CompletedState) Status() queue.Status { return queue.StatusCompleted }
