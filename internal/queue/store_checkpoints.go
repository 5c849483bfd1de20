package queue

import (
	"context"
	"fmt"
	"time"
)

// RecordCheckpoint durably stores one successful chunk result. The insert
// is idempotent: a concurrent duplicate write for the same (job, stage,
// chunk) is ignored, keeping the first result.
func (s *Store) RecordCheckpoint(ctx context.Context, jobID, stage string, chunkIndex int, idempotencyKey string, resultJSON []byte) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT OR IGNORE INTO checkpoints (job_id, stage, chunk_index, idempotency_key, result_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, stage, chunkIndex, idempotencyKey, string(resultJSON), timestamp(time.Now()),
	); err != nil {
		return fmt.Errorf("record checkpoint: %w", err)
	}
	return nil
}

// Checkpoint is one durable chunk result together with the idempotency
// key it was recorded under. Readers compare the key against the freshly
// planned chunk before trusting the payload.
type Checkpoint struct {
	Key     string
	Payload []byte
}

// LoadCheckpoints returns the chunk results already recorded for a stage,
// keyed by chunk index.
func (s *Store) LoadCheckpoints(ctx context.Context, jobID, stage string) (map[int]Checkpoint, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, idempotency_key, result_json FROM checkpoints WHERE job_id = ? AND stage = ? ORDER BY chunk_index ASC`,
		jobID, stage,
	)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer rows.Close()

	results := make(map[int]Checkpoint)
	for rows.Next() {
		var (
			index  int
			key    string
			result string
		)
		if err := rows.Scan(&index, &key, &result); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		results[index] = Checkpoint{Key: key, Payload: []byte(result)}
	}
	return results, rows.Err()
}

// DeleteCheckpoint discards one recorded chunk result so the chunk can be
// re-executed, used when a resumed plan no longer matches the stored key.
func (s *Store) DeleteCheckpoint(ctx context.Context, jobID, stage string, chunkIndex int) error {
	if err := s.execWithoutResultRetry(ctx,
		`DELETE FROM checkpoints WHERE job_id = ? AND stage = ? AND chunk_index = ?`,
		jobID, stage, chunkIndex,
	); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// CheckpointCounts returns, per stage name, how many chunks have a
// checkpoint for the job. Progress derives from this alone, which keeps it
// monotonic across restarts.
func (s *Store) CheckpointCounts(ctx context.Context, jobID string) (map[string]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(1) FROM checkpoints WHERE job_id = ? GROUP BY stage`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("count checkpoints: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			stage string
			count int
		)
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("scan checkpoint count: %w", err)
		}
		counts[stage] = count
	}
	return counts, rows.Err()
}
