package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"dubflow/internal/config"
	"dubflow/internal/logging"
	"dubflow/internal/notifications"
	"dubflow/internal/queue"
	"dubflow/internal/retry"
	"dubflow/internal/services"
	"dubflow/internal/stageexec"
	"dubflow/internal/staging"
)

// staleWorkspaceAge is how long failed or abandoned job workspaces keep
// their checkpoints before startup cleanup reclaims the disk.
const staleWorkspaceAge = 14 * 24 * time.Hour

// Manager claims queued jobs and runs them through the stage pipeline.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	factory      HandlerFactory
	executor     *stageexec.Executor
	heartbeat    *HeartbeatMonitor
	notifier     notifications.Service
	pollInterval time.Duration
	jobSlots     *semaphore.Weighted

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a manager with the real stage handlers.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithFactory(cfg, store, logger, NewHandlerFactory(cfg, store))
}

// NewManagerWithFactory constructs a manager with a custom handler
// factory, used by tests.
func NewManagerWithFactory(cfg *config.Config, store *queue.Store, logger *slog.Logger, factory HandlerFactory) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	policy := retry.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         time.Duration(cfg.Retry.BaseDelayMillis) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Retry.MaxDelayMillis) * time.Millisecond,
		MaxRateLimitWaits: cfg.Retry.MaxRateLimitWaits,
	}
	jobConcurrency := cfg.Workflow.JobConcurrency
	if jobConcurrency < 1 {
		jobConcurrency = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		factory:      factory,
		executor:     stageexec.New(store, policy, cfg.StageWeight, cfg.Workflow.ChunkConcurrency, logger),
		notifier:     notifications.NewService(cfg),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		jobSlots:     semaphore.NewWeighted(int64(jobConcurrency)),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// Start requeues jobs orphaned by a previous process and begins polling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	requeued, err := m.store.ResetRunning(runCtx)
	if err != nil {
		m.logger.Warn("requeue interrupted jobs failed", logging.Error(err))
	} else if requeued > 0 {
		m.logger.Info("requeued interrupted jobs", logging.Int64("count", requeued))
	}

	m.cleanWorkspaces(runCtx)

	go m.runLoop(runCtx)
	return nil
}

// cleanWorkspaces removes staging leftovers from deleted jobs and ages out
// workspaces nobody has touched in weeks. Runs once per start.
func (m *Manager) cleanWorkspaces(ctx context.Context) {
	jobs, err := m.store.ListJobs(ctx)
	if err != nil {
		m.logger.Warn("list jobs for workspace cleanup failed", logging.Error(err))
		return
	}
	active := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		active[job.ID] = struct{}{}
	}
	staging.CleanOrphaned(m.cfg.Paths.StagingDir, active, m.logger)
	staging.CleanStale(m.cfg.Paths.StagingDir, staleWorkspaceAge, m.logger)
}

// Stop terminates polling and waits for in-flight jobs to stop.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("reclaim stale jobs failed", logging.Error(err))
		}

		if err := m.jobSlots.Acquire(ctx, 1); err != nil {
			return
		}
		job, err := m.store.ClaimNextQueued(ctx)
		if err != nil {
			m.jobSlots.Release(1)
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("claim next job failed", logging.Error(err))
			m.waitOrShutdown(ctx)
			continue
		}
		if job == nil {
			m.jobSlots.Release(1)
			m.waitOrShutdown(ctx)
			continue
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer m.jobSlots.Release(1)
			m.processJob(ctx, job)
		}()
	}
}

// processJob runs every pending stage of one claimed job and records its
// terminal state.
func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("job started", logging.String("source", job.SourcePath))
	m.notify(logger, m.notifier.NotifyJobStarted(ctx, jobTitle(job)))

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	var heartbeatWG sync.WaitGroup
	heartbeatWG.Add(1)
	go m.heartbeat.StartLoop(heartbeatCtx, &heartbeatWG, job.ID)
	defer func() {
		stopHeartbeat()
		heartbeatWG.Wait()
	}()

	for {
		if ctx.Err() != nil {
			// Shutdown, not cancellation: the job goes back to queued on
			// the next start.
			return
		}
		cancelled, err := m.store.CancelRequested(ctx, job.ID)
		if err != nil {
			m.failJob(ctx, logger, job, err)
			return
		}
		if cancelled {
			m.cancelJob(ctx, logger, job)
			return
		}

		next, err := m.store.NextPendingStage(ctx, job.ID)
		if err != nil {
			m.failJob(ctx, logger, job, err)
			return
		}
		if next == nil {
			break
		}

		handler, err := m.factory(next.Name, job)
		if err != nil {
			m.failJob(ctx, logger, job, err)
			return
		}
		if err := m.store.SetCurrentStage(ctx, job.ID, next.Name); err != nil {
			m.failJob(ctx, logger, job, err)
			return
		}

		if err := m.executor.Run(ctx, job, handler); err != nil {
			switch {
			case errors.Is(err, stageexec.ErrCancelled):
				m.cancelJob(ctx, logger, job)
			case ctx.Err() != nil:
				logger.Info("job interrupted by shutdown", logging.String("stage", next.Name))
			default:
				m.failJob(ctx, logger, job, err)
			}
			return
		}
	}

	if err := m.store.MarkCompleted(ctx, job.ID, job.FinalFile); err != nil {
		logger.Error("mark job completed failed", logging.Error(err))
		return
	}
	if job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			logger.Warn("remove workspace failed", logging.Error(err))
		}
	}
	logger.Info("job completed", logging.String("final_file", job.FinalFile))
	m.notify(logger, m.notifier.NotifyJobCompleted(ctx, jobTitle(job), job.FinalFile))
}

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error) {
	if ctx.Err() != nil {
		return
	}
	logger.Error("job failed", logging.Error(cause))
	if err := m.store.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		logger.Error("mark job failed failed", logging.Error(err))
	}
	m.notify(logger, m.notifier.NotifyJobFailed(ctx, jobTitle(job), cause.Error()))
}

func (m *Manager) cancelJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	logger.Info("job cancelled")
	if err := m.store.MarkCancelled(ctx, job.ID); err != nil {
		logger.Error("mark job cancelled failed", logging.Error(err))
	}
	m.notify(logger, m.notifier.NotifyJobCancelled(ctx, jobTitle(job)))
}

// notify logs delivery failures instead of surfacing them; notifications
// never affect job state.
func (m *Manager) notify(logger *slog.Logger, err error) {
	if err != nil {
		logger.Warn("notification failed", logging.Error(err))
	}
}

func jobTitle(job *queue.Job) string {
	if strings.TrimSpace(job.Title) != "" {
		return job.Title
	}
	return filepath.Base(job.SourcePath)
}

func (m *Manager) waitOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
