package queue

import (
	"time"
)

// JobStatus represents the lifecycle of a dubbing job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var allJobStatuses = []JobStatus{
	JobQueued,
	JobRunning,
	JobCompleted,
	JobFailed,
	JobCancelled,
}

// ValidJobStatus reports whether value names a known job status.
func ValidJobStatus(value string) bool {
	for _, status := range allJobStatuses {
		if string(status) == value {
			return true
		}
	}
	return false
}

// Terminal reports whether no further work happens for the job.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// StageStatus represents the lifecycle of one stage within a job.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageOrder is the fixed pipeline order every job runs through.
var StageOrder = []string{
	StageTranscribe,
	StageTranslate,
	StageSynthesize,
	StageCompose,
}

const (
	StageTranscribe = "transcribe"
	StageTranslate  = "translate"
	StageSynthesize = "synthesize"
	StageCompose    = "compose"
)

// Job is a dubbing job persisted in SQLite.
type Job struct {
	ID              string
	SourcePath      string
	Title           string
	SourceLanguage  string
	TargetLanguage  string
	VoiceGender     string
	BurnSubtitles   bool
	TrimStart       time.Duration
	TrimEnd         time.Duration
	Status          JobStatus
	CancelRequested bool
	CurrentStage    string
	ErrorMessage    string
	ProgressPercent int
	ProgressMessage string
	FinalFile       string
	WorkDir         string
	Duration        time.Duration
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StageRecord is one stage's persisted state for a job.
type StageRecord struct {
	JobID           string
	Name            string
	Position        int
	Status          StageStatus
	PlannedChunks   int
	CompletedChunks int
	ErrorMessage    string
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// CheckpointRecord maps (job, stage, chunk index) to a successful chunk
// result. Written once per chunk; never updated.
type CheckpointRecord struct {
	JobID          string
	Stage          string
	ChunkIndex     int
	IdempotencyKey string
	ResultJSON     []byte
	CreatedAt      time.Time
}
