package api

import (
	"dubflow/internal/queue"
)

// FromJob converts a queue job to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:             job.ID,
		Title:          job.Title,
		SourcePath:     job.SourcePath,
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
		VoiceGender:    job.VoiceGender,
		BurnSubtitles:  job.BurnSubtitles,
		TrimStartMs:    job.TrimStart.Milliseconds(),
		TrimEndMs:      job.TrimEnd.Milliseconds(),
		Status:         string(job.Status),
		ErrorMessage:   job.ErrorMessage,
		FinalFile:      job.FinalFile,
		DurationMs:     job.Duration.Milliseconds(),
		Progress: JobProgress{
			Stage:   job.CurrentStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of queue jobs.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStage converts a stage record.
func FromStage(record *queue.StageRecord) Stage {
	if record == nil {
		return Stage{}
	}
	return Stage{
		Name:            record.Name,
		Status:          string(record.Status),
		PlannedChunks:   record.PlannedChunks,
		CompletedChunks: record.CompletedChunks,
		ErrorMessage:    record.ErrorMessage,
	}
}

// FromStages converts stage records in pipeline order.
func FromStages(records []*queue.StageRecord) []Stage {
	out := make([]Stage, 0, len(records))
	for _, record := range records {
		out = append(out, FromStage(record))
	}
	return out
}

// MergeStats stringifies status keys and guarantees every known status is
// present, so consumers can render stable tables.
func MergeStats(stats map[queue.JobStatus]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range []queue.JobStatus{
		queue.JobQueued, queue.JobRunning, queue.JobCompleted, queue.JobFailed, queue.JobCancelled,
	} {
		out[string(status)] = stats[status]
	}
	return out
}
