package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetStages returns a job's stage records in pipeline order.
func (s *Store) GetStages(ctx context.Context, jobID string) ([]*StageRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, name, position, status, planned_chunks, completed_chunks,
            error_message, started_at, finished_at
        FROM stages WHERE job_id = ? ORDER BY position ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stages: %w", err)
	}
	defer rows.Close()

	var stages []*StageRecord
	for rows.Next() {
		var (
			record     StageRecord
			startedAt  sql.NullString
			finishedAt sql.NullString
		)
		if err := rows.Scan(
			&record.JobID,
			&record.Name,
			&record.Position,
			&record.Status,
			&record.PlannedChunks,
			&record.CompletedChunks,
			&record.ErrorMessage,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		record.StartedAt = nullableTimestamp(startedAt)
		record.FinishedAt = nullableTimestamp(finishedAt)
		stages = append(stages, &record)
	}
	return stages, rows.Err()
}

// NextPendingStage returns the first stage that has not succeeded, or nil
// when every stage is done. A failed stage is returned as-is so callers can
// surface it.
func (s *Store) NextPendingStage(ctx context.Context, jobID string) (*StageRecord, error) {
	stages, err := s.GetStages(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, stage := range stages {
		if stage.Status != StageSucceeded {
			return stage, nil
		}
	}
	return nil, nil
}

// StartStage marks a stage running and records its chunk plan size.
func (s *Store) StartStage(ctx context.Context, jobID, name string, plannedChunks int) error {
	return s.updateStage(ctx, jobID, name,
		`status = ?, planned_chunks = ?, error_message = '', started_at = ?`,
		StageRunning, plannedChunks, timestamp(time.Now()),
	)
}

// SetStageCompletedChunks refreshes the completed chunk count.
func (s *Store) SetStageCompletedChunks(ctx context.Context, jobID, name string, completed int) error {
	return s.updateStage(ctx, jobID, name, `completed_chunks = ?`, completed)
}

// FinishStage marks a stage succeeded.
func (s *Store) FinishStage(ctx context.Context, jobID, name string) error {
	return s.updateStage(ctx, jobID, name,
		`status = ?, finished_at = ?`,
		StageSucceeded, timestamp(time.Now()),
	)
}

// FailStage marks a stage failed with an error summary.
func (s *Store) FailStage(ctx context.Context, jobID, name, message string) error {
	return s.updateStage(ctx, jobID, name,
		`status = ?, error_message = ?, finished_at = ?`,
		StageFailed, message, timestamp(time.Now()),
	)
}

func (s *Store) updateStage(ctx context.Context, jobID, name, setClause string, args ...any) error {
	ctx = ensureContext(ctx)
	query := `UPDATE stages SET ` + setClause + ` WHERE job_id = ? AND name = ?`
	args = append(args, jobID, name)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update stage %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stage rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("stage %s for job %s not found", name, jobID)
	}
	return nil
}
