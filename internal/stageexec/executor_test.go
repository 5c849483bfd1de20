package stageexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dubflow/internal/plan"
	"dubflow/internal/queue"
	"dubflow/internal/retry"
	"dubflow/internal/services"
	"dubflow/internal/testsupport"
)

func testStore(t *testing.T) *queue.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, testsupport.NewConfig(t))
}

func claimedJob(t *testing.T, store *queue.Store) *queue.Job {
	t.Helper()
	testsupport.NewJob(t, store, "/media/source.mkv")
	job, err := store.ClaimNextQueued(context.Background())
	if err != nil {
		t.Fatalf("claim job: %v", err)
	}
	job.Duration = 4 * time.Minute
	return job
}

func testExecutor(store *queue.Store, policy retry.Policy, concurrency int) *Executor {
	exec := New(store, policy, func(string) int { return 25 }, concurrency, nil)
	exec.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return exec
}

// fakeHandler plans fixed one-minute windows and executes chunks through
// a per-chunk script of errors.
type fakeHandler struct {
	mu       sync.Mutex
	failures map[int][]error
	executed map[int]int
	merged   [][]byte
	onChunk  func(index int)
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		failures: make(map[int][]error),
		executed: make(map[int]int),
	}
}

func (h *fakeHandler) Name() string { return queue.StageTranscribe }

func (h *fakeHandler) Prepare(ctx context.Context, job *queue.Job) error { return nil }

func (h *fakeHandler) Plan(ctx context.Context, job *queue.Job) ([]plan.Chunk, error) {
	return plan.TimeChunks(job.ID, h.Name(), job.Duration, time.Minute)
}

func (h *fakeHandler) ExecuteChunk(ctx context.Context, job *queue.Job, chunk plan.Chunk) ([]byte, error) {
	h.mu.Lock()
	h.executed[chunk.Index]++
	var err error
	if pending := h.failures[chunk.Index]; len(pending) > 0 {
		err = pending[0]
		h.failures[chunk.Index] = pending[1:]
	}
	onChunk := h.onChunk
	h.mu.Unlock()

	if onChunk != nil {
		onChunk(chunk.Index)
	}
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`{"chunk":%d}`, chunk.Index)), nil
}

func (h *fakeHandler) Merge(ctx context.Context, job *queue.Job, results [][]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.merged = results
	return nil
}

func (h *fakeHandler) HealthCheck(ctx context.Context) error { return nil }

func (h *fakeHandler) executions(index int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executed[index]
}

func defaultPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxRateLimitWaits: 5}
}

func TestExecutorRunsStageToCompletion(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	handler := newFakeHandler()
	exec := testExecutor(store, defaultPolicy(), 2)
	ctx := context.Background()

	if err := exec.Run(ctx, job, handler); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(handler.merged) != 4 {
		t.Fatalf("expected 4 merged results, got %d", len(handler.merged))
	}
	for i, result := range handler.merged {
		want := fmt.Sprintf(`{"chunk":%d}`, i)
		if string(result) != want {
			t.Fatalf("result %d out of order: %s", i, result)
		}
	}

	stages, err := store.GetStages(ctx, job.ID)
	if err != nil {
		t.Fatalf("get stages: %v", err)
	}
	if stages[0].Status != queue.StageSucceeded {
		t.Fatalf("stage status %s, want succeeded", stages[0].Status)
	}
	if stages[0].PlannedChunks != 4 || stages[0].CompletedChunks != 4 {
		t.Fatalf("chunk counts %d/%d, want 4/4", stages[0].CompletedChunks, stages[0].PlannedChunks)
	}

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.ProgressPercent != 25 {
		t.Fatalf("one succeeded stage of four equal weights should report 25, got %d", updated.ProgressPercent)
	}
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	handler := newFakeHandler()
	transient := services.Wrap(services.ErrTransient, "transcribe", "request", "connection reset", nil)
	handler.failures[2] = []error{transient, transient}

	exec := testExecutor(store, defaultPolicy(), 2)
	if err := exec.Run(context.Background(), job, handler); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := handler.executions(2); got != 3 {
		t.Fatalf("chunk 2 should run 3 times (2 failures, 1 success), ran %d", got)
	}
}

func TestExecutorRateLimitDoesNotConsumeAttempts(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	handler := newFakeHandler()
	limited := services.Wrap(&services.RateLimitError{RetryAfter: time.Millisecond}, "transcribe", "request", "throttled", nil)
	handler.failures[0] = []error{limited, limited, limited}

	policy := defaultPolicy()
	policy.MaxAttempts = 1
	exec := testExecutor(store, policy, 1)
	if err := exec.Run(context.Background(), job, handler); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := handler.executions(0); got != 4 {
		t.Fatalf("chunk 0 should run 4 times through rate-limit holds, ran %d", got)
	}
}

func TestExecutorPermanentFailureFailsStage(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	handler := newFakeHandler()
	handler.failures[1] = []error{services.Wrap(services.ErrInvalidInput, "transcribe", "request", "corrupt audio", nil)}

	exec := testExecutor(store, defaultPolicy(), 1)
	ctx := context.Background()
	err := exec.Run(ctx, job, handler)
	if err == nil {
		t.Fatal("expected stage failure")
	}
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input to propagate, got %v", err)
	}
	if got := handler.executions(1); got != 1 {
		t.Fatalf("permanent failure must not retry, chunk 1 ran %d times", got)
	}

	stages, err := store.GetStages(ctx, job.ID)
	if err != nil {
		t.Fatalf("get stages: %v", err)
	}
	if stages[0].Status != queue.StageFailed {
		t.Fatalf("stage status %s, want failed", stages[0].Status)
	}

	// The chunk that succeeded before the failure stays durable.
	checkpoints, err := store.LoadCheckpoints(ctx, job.ID, queue.StageTranscribe)
	if err != nil {
		t.Fatalf("load checkpoints: %v", err)
	}
	if _, ok := checkpoints[0]; !ok {
		t.Fatal("checkpoint for chunk 0 should survive the stage failure")
	}
}

func TestExecutorResumesFromCheckpoints(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	ctx := context.Background()

	handler := newFakeHandler()
	planned, err := handler.Plan(ctx, job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for index := 0; index < 2; index++ {
		payload := []byte(fmt.Sprintf(`{"chunk":%d}`, index))
		if err := store.RecordCheckpoint(ctx, job.ID, queue.StageTranscribe, index, planned[index].Key, payload); err != nil {
			t.Fatalf("seed checkpoint %d: %v", index, err)
		}
	}

	exec := testExecutor(store, defaultPolicy(), 2)
	if err := exec.Run(ctx, job, handler); err != nil {
		t.Fatalf("run: %v", err)
	}

	for index := 0; index < 2; index++ {
		if got := handler.executions(index); got != 0 {
			t.Fatalf("checkpointed chunk %d re-executed %d times", index, got)
		}
	}
	for index := 2; index < 4; index++ {
		if got := handler.executions(index); got != 1 {
			t.Fatalf("pending chunk %d ran %d times, want 1", index, got)
		}
	}
	if len(handler.merged) != 4 {
		t.Fatalf("merge should see all 4 results, got %d", len(handler.merged))
	}
}

func TestExecutorReexecutesCheckpointWithStaleKey(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	ctx := context.Background()

	// A prior run planned a different window for chunk 0, so its stored
	// key cannot match the key the fresh plan derives.
	staleKey := plan.IdempotencyKey(job.ID, queue.StageTranscribe, 0, "0-60000")
	if err := store.RecordCheckpoint(ctx, job.ID, queue.StageTranscribe, 0, staleKey, []byte(`{"stale":true}`)); err != nil {
		t.Fatalf("seed stale checkpoint: %v", err)
	}

	handler := newFakeHandler()
	exec := testExecutor(store, defaultPolicy(), 2)
	if err := exec.Run(ctx, job, handler); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := handler.executions(0); got != 1 {
		t.Fatalf("mismatched chunk 0 ran %d times, want 1", got)
	}
	if string(handler.merged[0]) != `{"chunk":0}` {
		t.Fatalf("merge used the stale payload: %s", handler.merged[0])
	}

	checkpoints, err := store.LoadCheckpoints(ctx, job.ID, queue.StageTranscribe)
	if err != nil {
		t.Fatalf("load checkpoints: %v", err)
	}
	planned, err := handler.Plan(ctx, job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if checkpoints[0].Key != planned[0].Key {
		t.Fatalf("checkpoint key %q not rewritten to the planned key", checkpoints[0].Key)
	}
}

func TestExecutorShutdownLeavesStageRowUntouched(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := newFakeHandler()
	handler.onChunk = func(index int) {
		if index == 0 {
			cancel()
		}
	}
	handler.failures[0] = []error{context.Canceled}

	exec := testExecutor(store, defaultPolicy(), 1)
	if err := exec.Run(runCtx, job, handler); err == nil {
		t.Fatal("expected error from interrupted stage")
	}

	stages, err := store.GetStages(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get stages: %v", err)
	}
	if stages[0].Status == queue.StageFailed {
		t.Fatal("shutdown must not mark the stage failed")
	}
}

func TestExecutorStopsAtChunkBoundaryOnCancel(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	ctx := context.Background()

	handler := newFakeHandler()
	handler.onChunk = func(index int) {
		if index == 0 {
			if err := store.RequestCancel(ctx, job.ID); err != nil {
				t.Errorf("request cancel: %v", err)
			}
		}
	}

	exec := testExecutor(store, defaultPolicy(), 1)
	err := exec.Run(ctx, job, handler)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	total := 0
	for index := 0; index < 4; index++ {
		total += handler.executions(index)
	}
	if total != 1 {
		t.Fatalf("dispatch should stop after the in-flight chunk, ran %d chunks", total)
	}

	checkpoints, err := store.LoadCheckpoints(ctx, job.ID, queue.StageTranscribe)
	if err != nil {
		t.Fatalf("load checkpoints: %v", err)
	}
	if _, ok := checkpoints[0]; !ok {
		t.Fatal("completed chunk should checkpoint before cancellation stops the stage")
	}
}

func TestExecutorProgressNeverRegresses(t *testing.T) {
	store := testStore(t)
	job := claimedJob(t, store)
	ctx := context.Background()

	// A prior run left the job further along than the durable state below
	// would compute on its own.
	if err := store.UpdateProgress(ctx, job.ID, 80, "almost there"); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	handler := newFakeHandler()
	exec := testExecutor(store, defaultPolicy(), 1)
	if err := exec.Run(ctx, job, handler); err != nil {
		t.Fatalf("run: %v", err)
	}

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.ProgressPercent < 80 {
		t.Fatalf("progress regressed to %d", updated.ProgressPercent)
	}
}
