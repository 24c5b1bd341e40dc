package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a pipeline run in a transport-friendly format.
type Run struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Style         string    `json:"style,omitempty"`
	Status        string    `json:"status"`
	ScriptContent string    `json:"scriptContent,omitempty"`
	BGMRef        string    `json:"bgmRef,omitempty"`
	AudioURL      string    `json:"audioUrl,omitempty"`
	FinalVideoURL string    `json:"finalVideoUrl,omitempty"`
	Degraded      bool      `json:"degraded"`
	Failure       *Failure  `json:"failure,omitempty"`
	CreatedAt     string    `json:"createdAt,omitempty"`
	UpdatedAt     string    `json:"updatedAt,omitempty"`
	Segments      []Segment `json:"segments,omitempty"`
	Tasks         []Task    `json:"tasks,omitempty"`
}

// Failure is the diagnostic context recorded when a run failed.
type Failure struct {
	Stage     string `json:"stage"`
	TaskID    string `json:"taskId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Summary   string `json:"summary"`
	Log       string `json:"log,omitempty"`
	At        string `json:"at,omitempty"`
}

// Segment is one analyzed span of a source clip.
type Segment struct {
	ID            string  `json:"id"`
	Index         int     `json:"index"`
	VideoRef      string  `json:"videoRef"`
	StartSeconds  float64 `json:"startSeconds"`
	Duration      float64 `json:"duration"`
	NarrationText string  `json:"narrationText,omitempty"`
	EmotionTag    string  `json:"emotionTag,omitempty"`
	ShockScore    int     `json:"shockScore"`
	Cue           string  `json:"cue,omitempty"`
	AudioDuration float64 `json:"audioDuration,omitempty"`
}

// Task is a durable stage task.
type Task struct {
	ID        string `json:"id"`
	Stage     string `json:"stage"`
	State     string `json:"state"`
	Attempt   int    `json:"attempt"`
	RequestID string `json:"requestId"`
	NotBefore string `json:"notBefore,omitempty"`
	LastError string `json:"lastError,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	Lanes      int            `json:"lanes"`
	QueueStats map[string]int `json:"queueStats"`
	LastError  string         `json:"lastError,omitempty"`
	LastRun    *Run           `json:"lastRun,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// CreateRunRequest is the body of POST /api/runs.
type CreateRunRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Style       string   `json:"style,omitempty"`
	BGMRef      string   `json:"bgmRef,omitempty"`
	VideoRefs   []string `json:"videoRefs"`
}

// CreateRunResponse reports the created run and its first task.
type CreateRunResponse struct {
	Run  Run  `json:"run"`
	Task Task `json:"task"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run with its segments and tasks.
type RunResponse struct {
	Run Run `json:"run"`
}

// TaskResponse wraps the task an operator action enqueued.
type TaskResponse struct {
	Task Task `json:"task"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
