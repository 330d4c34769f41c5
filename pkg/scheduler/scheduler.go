package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between scheduling runs
	DefaultPollInterval = 30 * time.Second

	// DefaultSyncInterval is how long an active integration waits between passes
	DefaultSyncInterval = 15 * time.Minute

	// DefaultErrorBackoff is how long an errored integration waits before it is tried again
	DefaultErrorBackoff = time.Hour

	// DefaultBatchSize is the number of integrations to enqueue per poll
	DefaultBatchSize = 100

	// LockKeyPrefix is the prefix for scheduler dedupe locks
	LockKeyPrefix = "scheduler:integration:"
)

// DueLister finds integrations due for a pass. It reads across workspaces.
type DueLister interface {
	ListDue(ctx context.Context, syncedBefore, failedBefore time.Time, limit int) ([]models.Integration, error)
}

// Enqueuer publishes a sync job for an integration
type Enqueuer interface {
	Enqueue(ctx context.Context, integration *models.Integration, trigger models.SyncTrigger) (string, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often to look for due integrations
	PollInterval time.Duration

	// SyncInterval is the minimum age of last_sync before an active integration is due
	SyncInterval time.Duration

	// ErrorBackoff is the minimum time since an errored integration last changed before it is due
	ErrorBackoff time.Duration

	// BatchSize is the maximum number of integrations to enqueue per poll
	BatchSize int

	// LockTTL is how long other scheduler instances skip an integration after it was enqueued.
	// Zero uses SyncInterval.
	LockTTL time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		SyncInterval: DefaultSyncInterval,
		ErrorBackoff: DefaultErrorBackoff,
		BatchSize:    DefaultBatchSize,
		LockTTL:      DefaultSyncInterval,
	}
}

// CycleStats counts what one scheduling cycle did
type CycleStats struct {
	Due      int
	Enqueued int
	Skipped  int
	Failed   int
}

// Scheduler polls for due integrations and enqueues sync jobs for them
type Scheduler struct {
	repo     DueLister
	enqueuer Enqueuer
	locker   *redis.Locker
	config   Config
	logger   ectologger.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler. locker may be nil for a single instance.
func NewScheduler(
	repo DueLister,
	enqueuer Enqueuer,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSyncInterval
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = DefaultErrorBackoff
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.LockTTL <= 0 {
		config.LockTTL = config.SyncInterval
	}

	return &Scheduler{
		repo:     repo,
		enqueuer: enqueuer,
		locker:   locker,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// SetClock replaces the time source
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start starts the poll loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s sync_interval=%s error_backoff=%s batch_size=%d",
		s.config.PollInterval, s.config.SyncInterval, s.config.ErrorBackoff, s.config.BatchSize)

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")
	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.RunCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle enqueues every integration that is currently due
func (s *Scheduler) RunCycle(ctx context.Context) CycleStats {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunCycle")
	defer span.End()

	var stats CycleStats
	start := time.Now()
	now := s.now().UTC()

	due, err := s.repo.ListDue(ctx, now.Add(-s.config.SyncInterval), now.Add(-s.config.ErrorBackoff), s.config.BatchSize)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list due integrations")
		return stats
	}
	stats.Due = len(due)
	if len(due) == 0 {
		s.logger.WithContext(ctx).Debug("No integrations due for sync")
		return stats
	}

	for i := range due {
		err := s.schedule(ctx, &due[i])
		switch {
		case err == nil:
			stats.Enqueued++
		case errors.Is(err, redis.ErrLockNotAcquired):
			stats.Skipped++
		default:
			stats.Failed++
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to enqueue sync for integration %s", due[i].ID)
		}
	}

	metrics.SchedulerEnqueuedTotal.Add(float64(stats.Enqueued))
	s.logger.WithContext(ctx).Infof("Scheduling cycle completed: due=%d enqueued=%d skipped=%d failed=%d duration=%s",
		stats.Due, stats.Enqueued, stats.Skipped, stats.Failed, time.Since(start))
	return stats
}

// schedule enqueues one integration. The dedupe lock is left to expire so other instances skip it meanwhile.
func (s *Scheduler) schedule(ctx context.Context, integration *models.Integration) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.schedule")
	defer span.End()

	ctx = fernctx.SetWorkspaceID(ctx, integration.WorkspaceID.String())
	ctx = fernctx.SetIntegration(ctx, integration.ID.String(), string(integration.Provider))

	var lock *redis.Lock
	if s.locker != nil {
		var err error
		lock, err = s.locker.Acquire(ctx, LockKeyPrefix+integration.ID.String(), s.config.LockTTL)
		if err != nil {
			return err
		}
	}

	jobID, err := s.enqueuer.Enqueue(ctx, integration, models.SyncTriggerSchedule)
	if err != nil {
		if lock != nil {
			_ = lock.Release(ctx)
		}
		return err
	}

	s.logger.WithContext(ctx).Debugf("Enqueued sync job %s for integration %s (status=%s)", jobID, integration.ID, integration.Status)
	return nil
}
