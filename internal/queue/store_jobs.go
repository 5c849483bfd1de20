package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// NewJobParams carries the caller-supplied attributes of a new job.
type NewJobParams struct {
	SourcePath     string
	Title          string
	SourceLanguage string
	TargetLanguage string
	VoiceGender    string
	BurnSubtitles  bool
	TrimStart      time.Duration
	TrimEnd        time.Duration
}

const jobColumns = `id, source_path, title, source_language, target_language, voice_gender,
    burn_subtitles, trim_start_ms, trim_end_ms, status, cancel_requested, current_stage, error_message,
    progress_percent, progress_message, final_file, work_dir, duration_ms,
    last_heartbeat, created_at, updated_at`

// NewJob enqueues a job and creates its pending stage records in one
// transaction.
func (s *Store) NewJob(ctx context.Context, params NewJobParams) (*Job, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(params.SourcePath) == "" {
		return nil, errors.New("new job: source path required")
	}
	if params.TrimStart < 0 || params.TrimEnd < 0 {
		return nil, errors.New("new job: negative trim bound")
	}
	if params.TrimEnd > 0 && params.TrimEnd <= params.TrimStart {
		return nil, errors.New("new job: trim end must be after trim start")
	}

	id := uuid.NewString()
	now := timestamp(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin new job tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (
            id, source_path, title, source_language, target_language, voice_gender,
            burn_subtitles, trim_start_ms, trim_end_ms, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		params.SourcePath,
		params.Title,
		params.SourceLanguage,
		params.TargetLanguage,
		params.VoiceGender,
		boolToInt(params.BurnSubtitles),
		params.TrimStart.Milliseconds(),
		params.TrimEnd.Milliseconds(),
		JobQueued,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	for position, name := range StageOrder {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stages (job_id, name, position, status) VALUES (?, ?, ?, ?)`,
			id, name, position, StagePending,
		); err != nil {
			return nil, fmt.Errorf("insert stage %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit new job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs ordered oldest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextQueued atomically moves the oldest queued job to running and
// returns it. Returns nil when nothing is queued.
func (s *Store) ClaimNextQueued(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)

	var claimed *Job
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin claim tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`,
			JobQueued,
		)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			claimed = nil
			return tx.Commit()
		}
		if err != nil {
			return fmt.Errorf("select queued job: %w", err)
		}

		now := timestamp(time.Now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
			JobRunning, now, now, job.ID, JobQueued,
		); err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit claim: %w", err)
		}

		job.Status = JobRunning
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// SetCurrentStage records the stage the job is working through.
func (s *Store) SetCurrentStage(ctx context.Context, id, stage string) error {
	return s.updateJob(ctx, id, `current_stage = ?`, stage)
}

// SetWorkDir records the job's staging directory.
func (s *Store) SetWorkDir(ctx context.Context, id, workDir string) error {
	return s.updateJob(ctx, id, `work_dir = ?`, workDir)
}

// SetDuration records the probed media duration.
func (s *Store) SetDuration(ctx context.Context, id string, duration time.Duration) error {
	return s.updateJob(ctx, id, `duration_ms = ?`, duration.Milliseconds())
}

// SetFinalFile records the produced asset path as soon as it is known, so
// a restart between composition and the terminal transition keeps it.
func (s *Store) SetFinalFile(ctx context.Context, id, finalFile string) error {
	return s.updateJob(ctx, id, `final_file = ?`, finalFile)
}

// UpdateProgress persists the aggregated progress. The percent never moves
// backwards: the stored value wins when it is already higher.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent int, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE jobs SET progress_percent = MAX(progress_percent, ?), progress_message = ?, updated_at = ? WHERE id = ?`,
		percent, message, timestamp(time.Now()), id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkCompleted finishes the job successfully.
func (s *Store) MarkCompleted(ctx context.Context, id, finalFile string) error {
	return s.updateJob(ctx, id,
		`status = ?, final_file = ?, progress_percent = 100, progress_message = 'Completed', error_message = '', last_heartbeat = NULL`,
		JobCompleted, finalFile,
	)
}

// MarkFailed finishes the job with an error summary.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.updateJob(ctx, id,
		`status = ?, error_message = ?, last_heartbeat = NULL`,
		JobFailed, message,
	)
}

// MarkCancelled finishes the job after a cancellation request was honored.
// Checkpoints and completed stage results stay readable.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.updateJob(ctx, id,
		`status = ?, progress_message = 'Cancelled', last_heartbeat = NULL`,
		JobCancelled,
	)
}

// RequestCancel flags a running or queued job for cooperative cancellation.
// Queued jobs are cancelled immediately.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("cancel job %s: already %s", id, job.Status)
	}
	if job.Status == JobQueued {
		return s.updateJob(ctx, id, `status = ?, cancel_requested = 1, progress_message = 'Cancelled'`, JobCancelled)
	}
	return s.updateJob(ctx, id, `cancel_requested = 1`)
}

// CancelRequested reads the cancellation flag without loading the full job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// RetryJob moves a failed or cancelled job back to queued. Checkpoints are
// kept, so completed chunks are skipped on the next run.
func (s *Store) RetryJob(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, cancel_requested = 0, error_message = '',
            progress_message = 'Retry requested', updated_at = ?
        WHERE id = ? AND status IN (?, ?)`,
		JobQueued, timestamp(time.Now()), id, JobFailed, JobCancelled,
	)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retry job rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("retry job %s: not in a retryable state", id)
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE stages SET status = ?, error_message = '' WHERE job_id = ? AND status = ?`,
		StagePending, id, StageFailed,
	); err != nil {
		return fmt.Errorf("reset failed stages: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for a running job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := timestamp(time.Now())
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, JobRunning,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns running jobs whose heartbeat expired back to queued.
// Their checkpoints make the re-run skip completed chunks.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_heartbeat = NULL,
            progress_message = 'Reclaimed after stale heartbeat', updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		JobQueued, timestamp(time.Now()), JobRunning, timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunning returns every running job to queued, used at daemon startup
// to recover from an unclean shutdown.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_heartbeat = NULL,
            progress_message = 'Reset at startup', updated_at = ?
        WHERE status = ?`,
		JobQueued, timestamp(time.Now()), JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns job counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[JobStatus]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		stats[JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue stats: %w", err)
	}
	return stats, nil
}

// DeleteJob removes a terminal job and, through foreign keys, its stages
// and checkpoints.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE id = ? AND status IN (?, ?, ?)`,
		id, JobCompleted, JobFailed, JobCancelled,
	)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete job %s: not found or not terminal", id)
	}
	return nil
}

func (s *Store) updateJob(ctx context.Context, id, setClause string, args ...any) error {
	ctx = ensureContext(ctx)
	query := `UPDATE jobs SET ` + setClause + `, updated_at = ? WHERE id = ?`
	args = append(args, timestamp(time.Now()), id)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job           Job
		burn          int
		trimStartMs   int64
		trimEndMs     int64
		cancel        int
		durationMs    int64
		lastHeartbeat sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(
		&job.ID,
		&job.SourcePath,
		&job.Title,
		&job.SourceLanguage,
		&job.TargetLanguage,
		&job.VoiceGender,
		&burn,
		&trimStartMs,
		&trimEndMs,
		&job.Status,
		&cancel,
		&job.CurrentStage,
		&job.ErrorMessage,
		&job.ProgressPercent,
		&job.ProgressMessage,
		&job.FinalFile,
		&job.WorkDir,
		&durationMs,
		&lastHeartbeat,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.BurnSubtitles = burn != 0
	job.TrimStart = time.Duration(trimStartMs) * time.Millisecond
	job.TrimEnd = time.Duration(trimEndMs) * time.Millisecond
	job.CancelRequested = cancel != 0
	job.Duration = time.Duration(durationMs) * time.Millisecond
	job.LastHeartbeat = nullableTimestamp(lastHeartbeat)
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	return &job, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
