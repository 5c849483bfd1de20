package api

import (
	"context"

	"dubflow/internal/queue"
)

// JobReader abstracts the queue reads the API surface needs.
type JobReader interface {
	ListJobs(ctx context.Context, statuses ...queue.JobStatus) ([]*queue.Job, error)
	GetJob(ctx context.Context, id string) (*queue.Job, error)
	GetStages(ctx context.Context, jobID string) ([]*queue.StageRecord, error)
	Stats(ctx context.Context) (map[queue.JobStatus]int, error)
}

// JobService exposes read-only job queries returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs filtered by status, newest first.
func (s *JobService) List(ctx context.Context, statuses ...queue.JobStatus) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job including its per-stage detail.
func (s *JobService) Describe(ctx context.Context, id string) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.GetStages(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromJob(job)
	dto.Stages = FromStages(stages)
	return &dto, nil
}

// Stats returns job counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeStats(stats), nil
}
