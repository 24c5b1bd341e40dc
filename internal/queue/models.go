package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a pipeline run.
type Status string

const (
	StatusUploading       Status = "UPLOADING"
	StatusAnalyzing       Status = "ANALYZING"
	StatusReview          Status = "REVIEW"
	StatusScriptGenerated Status = "SCRIPT_GENERATED"
	StatusAudioGenerating Status = "AUDIO_GENERATING"
	StatusAudioGenerated  Status = "AUDIO_GENERATED"
	StatusRendering       Status = "RENDERING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
)

// allStatuses is ordered along the forward stage order; FAILED sits outside it.
var allStatuses = []Status{
	StatusUploading,
	StatusAnalyzing,
	StatusReview,
	StatusScriptGenerated,
	StatusAudioGenerating,
	StatusAudioGenerated,
	StatusRendering,
	StatusCompleted,
	StatusFailed,
}

var statusRank = func() map[Status]int {
	rank := make(map[Status]int, len(allStatuses))
	for i, status := range allStatuses {
		rank[status] = i
	}
	return rank
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusRank[normalized]
	return normalized, ok
}

// IsTerminal reports whether no stage will ever move the status again without operator action.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AtOrAfter reports whether s is at or beyond other in the forward stage order.
// FAILED is never at or after a forward status.
func (s Status) AtOrAfter(other Status) bool {
	if s == StatusFailed || other == StatusFailed {
		return s == other
	}
	a, okA := statusRank[s]
	b, okB := statusRank[other]
	return okA && okB && a >= b
}

// Stage names one unit of pipeline work.
type Stage string

const (
	StageAnalyze Stage = "analyze"
	StageScript  Stage = "script"
	StageAudio   Stage = "audio"
	StageRender  Stage = "render"
)

// AllStages returns the stages in dispatch order.
func AllStages() []Stage {
	return []Stage{StageAnalyze, StageScript, StageAudio, StageRender}
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range AllStages() {
		if stage == known {
			return stage, true
		}
	}
	return "", false
}

// TaskState tracks a stage task through the durable queue.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskRunning TaskState = "running"
	TaskDone    TaskState = "done"
	TaskDead    TaskState = "dead"
)

// Run is the persisted pipeline run record.
type Run struct {
	ID             string
	Title          string
	Description    string
	Style          string
	Status         Status
	ScriptContent  string
	BGMRef         string
	AudioURL       string
	FinalVideoURL  string
	Degraded       bool
	ErrorLog       string
	ErrorStep      string
	ErrorTaskID    string
	ErrorRequestID string
	ErrorAt        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewRun describes a run to create.
type NewRun struct {
	Title       string
	Description string
	Style       string
	BGMRef      string
	VideoRefs   []string
}

// VideoAsset is a source clip registered at run creation.
type VideoAsset struct {
	ID        string
	RunID     string
	Ref       string
	SortOrder int
}

// Segment is one analyzed span of a source clip. Narration text and cue are
// filled by the script stage; AudioRef caches the narration produced by the
// audio stage so render can reuse it.
type Segment struct {
	ID            string
	RunID         string
	Index         int
	AssetID       string
	VideoRef      string
	StartSeconds  float64
	Duration      float64
	NarrationText string
	EmotionTag    string
	ShockScore    int
	Cue           string
	AudioRef      string
	AudioDuration float64
}

// DefaultSegmentDuration stands in for missing or non-positive clip durations.
const DefaultSegmentDuration = 5.0

// SegmentScript assigns narration to an existing segment.
type SegmentScript struct {
	SegmentID string
	Text      string
	Cue       string
}

// Task is a durable stage task.
type Task struct {
	ID          string
	RunID       string
	Stage       Stage
	Attempt     int
	State       TaskState
	NotBefore   time.Time
	RequestID   string
	LastError   string
	HeartbeatAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskSpec describes a task to enqueue.
type TaskSpec struct {
	RunID     string
	Stage     Stage
	RequestID string
	Attempt   int
	NotBefore time.Time
}

// Failure carries the diagnostic context recorded when a run fails.
type Failure struct {
	Stage     Stage
	TaskID    string
	RequestID string
	Trace     string
	At        time.Time
}

const (
	maxErrorLogChars = 20000
	maxIdentChars    = 128
	maxStepChars     = 64
)

// HealthSummary describes aggregated run counts.
type HealthSummary struct {
	Total      int
	Processing int
	Review     int
	Failed     int
	Completed  int
	Degraded   int
}

// DatabaseHealth captures diagnostic information about the run database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	MissingTables    []string
	IntegrityCheck   bool
	TotalRuns        int
	PendingTasks     int
	Error            string
}
