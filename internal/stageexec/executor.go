// Package stageexec drives one stage of one job: plan its chunks, run
// them concurrently with retry and checkpointing, then merge the results.
// A chunk that checkpointed on a previous run is never executed again, so
// restarting a crashed job resumes from its last durable chunk.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"dubflow/internal/logging"
	"dubflow/internal/plan"
	"dubflow/internal/progress"
	"dubflow/internal/queue"
	"dubflow/internal/retry"
	"dubflow/internal/services"
	"dubflow/internal/stage"
)

// ErrCancelled reports that a requested cancellation stopped the stage at
// a chunk boundary. Checkpoints written before the stop are kept.
var ErrCancelled = errors.New("job cancelled")

// Executor runs stages against the queue store. Safe for reuse across
// jobs and stages.
type Executor struct {
	store       *queue.Store
	policy      retry.Policy
	weights     progress.WeightFunc
	concurrency int64
	logger      *slog.Logger

	// sleep is swapped out in tests so backoff waits do not slow them.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an executor. concurrency bounds how many chunks of one stage
// run at once; values below one mean serial execution.
func New(store *queue.Store, policy retry.Policy, weights progress.WeightFunc, concurrency int, logger *slog.Logger) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:       store,
		policy:      policy,
		weights:     weights,
		concurrency: int64(concurrency),
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Run executes one stage to completion. It returns ErrCancelled when a
// cancellation request stopped dispatch, and the failing chunk's error
// when the stage fails; in the failure case the stage row is already
// marked failed.
func (e *Executor) Run(ctx context.Context, job *queue.Job, handler stage.Handler) error {
	name := handler.Name()
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, e.logger)

	if err := handler.Prepare(ctx, job); err != nil {
		return e.failStage(ctx, job, name, "prepare", err)
	}
	chunks, err := handler.Plan(ctx, job)
	if err != nil {
		return e.failStage(ctx, job, name, "plan", err)
	}
	if err := e.store.StartStage(ctx, job.ID, name, len(chunks)); err != nil {
		return err
	}

	checkpoints, err := e.store.LoadCheckpoints(ctx, job.ID, name)
	if err != nil {
		return err
	}
	pending := make([]plan.Chunk, 0, len(chunks))
	completed := 0
	for _, chunk := range chunks {
		if cp, ok := checkpoints[chunk.Index]; ok {
			if cp.Key == chunk.Key {
				completed++
				continue
			}
			// The resumed plan covers a different window than the stored
			// result. Discard it and run the chunk again.
			logger.Warn("checkpoint key mismatch, re-executing chunk",
				logging.Int("chunk", chunk.Index))
			if err := e.store.DeleteCheckpoint(ctx, job.ID, name, chunk.Index); err != nil {
				return err
			}
		}
		pending = append(pending, chunk)
	}
	logger.Info("stage planned", logging.Int("chunks", len(chunks)), logging.Int("checkpointed", completed))

	tracker := &chunkTracker{completed: completed}
	if err := e.reportProgress(ctx, job, name, tracker.count(), len(chunks)); err != nil {
		return err
	}

	if err := e.runChunks(ctx, job, handler, pending, len(chunks), tracker, logger); err != nil {
		if errors.Is(err, ErrCancelled) {
			logger.Info("stage cancelled", logging.Int("completed_chunks", tracker.count()))
			return err
		}
		if ctx.Err() != nil {
			// Shutdown, not a chunk failure: the stage row stays as-is and
			// the job requeues on the next start.
			return err
		}
		return e.failStage(ctx, job, name, "execute", err)
	}

	results, err := e.orderedResults(ctx, job.ID, name, len(chunks))
	if err != nil {
		return err
	}
	if err := handler.Merge(ctx, job, results); err != nil {
		return e.failStage(ctx, job, name, "merge", err)
	}

	if err := e.store.FinishStage(ctx, job.ID, name); err != nil {
		return err
	}
	if err := e.reportProgress(ctx, job, name, len(chunks), len(chunks)); err != nil {
		return err
	}
	logger.Info("stage finished", logging.Int("chunks", len(chunks)))
	return nil
}

// runChunks dispatches pending chunks through a bounded worker pool. The
// cancel flag is checked before every dispatch; chunks already in flight
// finish and checkpoint before the stage stops.
func (e *Executor) runChunks(ctx context.Context, job *queue.Job, handler stage.Handler, pending []plan.Chunk, planned int, tracker *chunkTracker, logger *slog.Logger) error {
	if len(pending) == 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(e.concurrency)

	for _, chunk := range pending {
		chunk := chunk
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}
		cancelled, err := e.store.CancelRequested(ctx, job.ID)
		if err != nil {
			sem.Release(1)
			_ = group.Wait()
			return err
		}
		if cancelled {
			sem.Release(1)
			_ = group.Wait()
			return ErrCancelled
		}
		group.Go(func() error {
			defer sem.Release(1)
			// Runs on the stage context, not the group context: a failure
			// in a sibling chunk stops new dispatch but lets this chunk
			// finish and checkpoint its result.
			payload, err := e.executeWithRetry(ctx, job, handler, chunk, logger)
			if err != nil {
				return err
			}
			if err := e.store.RecordCheckpoint(ctx, job.ID, handler.Name(), chunk.Index, chunk.Key, payload); err != nil {
				return err
			}
			done := tracker.increment()
			return e.reportProgress(ctx, job, handler.Name(), done, planned)
		})
	}
	return group.Wait()
}

// executeWithRetry is the per-chunk attempt loop. Transient failures back
// off and consume the attempt budget; rate-limit holds wait without
// consuming it.
func (e *Executor) executeWithRetry(ctx context.Context, job *queue.Job, handler stage.Handler, chunk plan.Chunk, logger *slog.Logger) ([]byte, error) {
	attempts := 0
	rateLimitWaits := 0
	for {
		payload, err := handler.ExecuteChunk(ctx, job, chunk)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if services.Classify(err) == services.ClassRateLimited {
			rateLimitWaits++
		} else {
			attempts++
		}
		decision := e.policy.Decide(chunk.Key, attempts, rateLimitWaits, err)
		if decision.Outcome == retry.OutcomeFail {
			logger.Error("chunk failed",
				logging.Int("chunk", chunk.Index),
				logging.Int("attempts", attempts),
				logging.String("reason", decision.Reason),
				logging.Error(err),
			)
			return nil, fmt.Errorf("chunk %d: %s: %w", chunk.Index, decision.Reason, err)
		}

		logger.Warn("chunk retrying",
			logging.Int("chunk", chunk.Index),
			logging.Int("attempts", attempts),
			logging.Duration("wait", decision.Wait),
			logging.Bool("rate_limited", decision.RateLimit),
			logging.Error(err),
		)
		if err := e.sleep(ctx, decision.Wait); err != nil {
			return nil, err
		}
	}
}

// orderedResults loads the stage's checkpoints and lays them out in chunk
// index order for Merge.
func (e *Executor) orderedResults(ctx context.Context, jobID, name string, planned int) ([][]byte, error) {
	checkpoints, err := e.store.LoadCheckpoints(ctx, jobID, name)
	if err != nil {
		return nil, err
	}
	results := make([][]byte, planned)
	for index := 0; index < planned; index++ {
		cp, ok := checkpoints[index]
		if !ok {
			return nil, fmt.Errorf("stage %s: checkpoint for chunk %d missing after execution", name, index)
		}
		results[index] = cp.Payload
	}
	return results, nil
}

// reportProgress refreshes the stage's completed count and recomputes the
// job percentage from durable state only, so it never moves backwards.
func (e *Executor) reportProgress(ctx context.Context, job *queue.Job, name string, completed, planned int) error {
	if err := e.store.SetStageCompletedChunks(ctx, job.ID, name, completed); err != nil {
		return err
	}
	stages, err := e.store.GetStages(ctx, job.ID)
	if err != nil {
		return err
	}
	counts, err := e.store.CheckpointCounts(ctx, job.ID)
	if err != nil {
		return err
	}
	percent := progress.Percent(progress.FromRecords(stages, counts, e.weights))
	return e.store.UpdateProgress(ctx, job.ID, percent, progress.Message(name, completed, planned))
}

// failStage records a stage failure and returns the original error.
func (e *Executor) failStage(ctx context.Context, job *queue.Job, name, operation string, err error) error {
	message := fmt.Sprintf("%s: %v", operation, err)
	if markErr := e.store.FailStage(ctx, job.ID, name, message); markErr != nil {
		e.logger.Error("mark stage failed",
			logging.String("job_id", job.ID), logging.String("stage", name), logging.Error(markErr))
	}
	return err
}

// chunkTracker counts completed chunks across workers.
type chunkTracker struct {
	mu        sync.Mutex
	completed int
}

func (t *chunkTracker) increment() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	return t.completed
}

func (t *chunkTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
