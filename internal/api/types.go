package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a dubbing job in a transport-friendly format.
type Job struct {
	ID             string      `json:"id"`
	Title          string      `json:"title,omitempty"`
	SourcePath     string      `json:"sourcePath"`
	SourceLanguage string      `json:"sourceLanguage"`
	TargetLanguage string      `json:"targetLanguage"`
	VoiceGender    string      `json:"voiceGender"`
	BurnSubtitles  bool        `json:"burnSubtitles"`
	TrimStartMs    int64       `json:"trimStartMs,omitempty"`
	TrimEndMs      int64       `json:"trimEndMs,omitempty"`
	Status         string      `json:"status"`
	Progress       JobProgress `json:"progress"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	FinalFile      string      `json:"finalFile,omitempty"`
	DurationMs     int64       `json:"durationMs,omitempty"`
	CreatedAt      string      `json:"createdAt,omitempty"`
	UpdatedAt      string      `json:"updatedAt,omitempty"`
	Stages         []Stage     `json:"stages,omitempty"`
}

// JobProgress captures aggregate progress for a job.
type JobProgress struct {
	Stage   string `json:"stage,omitempty"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// Stage mirrors one pipeline stage's persisted state.
type Stage struct {
	Name            string `json:"name"`
	Status          string `json:"status"`
	PlannedChunks   int    `json:"plannedChunks"`
	CompletedChunks int    `json:"completedChunks"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	QueueStats   map[string]int `json:"queueStats"`
	StageHealth  []StageHealth  `json:"stageHealth"`
}

// SubmitRequest is the payload for creating a job over the API.
type SubmitRequest struct {
	SourcePath     string `json:"sourcePath"`
	Title          string `json:"title,omitempty"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	VoiceGender    string `json:"voiceGender,omitempty"`
	BurnSubtitles  *bool  `json:"burnSubtitles,omitempty"`
	TrimStartMs    int64  `json:"trimStartMs,omitempty"`
	TrimEndMs      int64  `json:"trimEndMs,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// StatsResponse provides a normalized queue stats payload.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}
