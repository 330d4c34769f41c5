package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/orchestrator"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrProcessorAlreadyRunning is returned when Start is called twice
	ErrProcessorAlreadyRunning = errors.New("processor already running")

	// ErrInvalidJobMessage is returned when a job message cannot be used
	ErrInvalidJobMessage = errors.New("invalid job message")
)

const (
	// DefaultStream is the stream sync jobs are published to
	DefaultStream = "fern:sync:jobs"

	// DefaultConsumerGroup is the consumer group shared by all workers
	DefaultConsumerGroup = "fern-workers"

	// DefaultBatchSize is the default number of messages to consume at once
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of redeliveries before a job is dead-lettered
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to claim stale pending messages
	DefaultClaimInterval = 30 * time.Second

	// DefaultClaimMinIdle is the minimum idle time before claiming a message
	DefaultClaimMinIdle = 60 * time.Second

	// DefaultJobTimeout bounds a single sync pass
	DefaultJobTimeout = 10 * time.Minute
)

// Syncer runs one sync pass for an integration.
type Syncer interface {
	SyncByID(ctx context.Context, id uuid.UUID, trigger models.SyncTrigger) (*orchestrator.SyncResult, error)
}

// ProcessorConfig holds configuration for the job processor
type ProcessorConfig struct {
	// Stream name for the job queue
	Stream string

	// Consumer group name
	ConsumerGroup string

	// Consumer name (unique per instance)
	ConsumerName string

	// Number of messages to fetch per batch
	BatchSize int64

	// How long to block waiting for new messages
	BlockTimeout time.Duration

	// Redeliveries allowed before a job is moved to the dead letter queue
	MaxRetries int

	// How often to check for and claim stale pending messages
	ClaimInterval time.Duration

	// Minimum idle time before claiming a pending message
	ClaimMinIdle time.Duration

	// Number of worker goroutines
	WorkerCount int

	// Upper bound on one sync pass
	JobTimeout time.Duration
}

// DefaultProcessorConfig returns the default processor configuration
func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return ProcessorConfig{
		Stream:        DefaultStream,
		ConsumerGroup: DefaultConsumerGroup,
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxRetries:    DefaultMaxRetries,
		ClaimInterval: DefaultClaimInterval,
		ClaimMinIdle:  DefaultClaimMinIdle,
		WorkerCount:   1,
		JobTimeout:    DefaultJobTimeout,
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	defaults := DefaultProcessorConfig()
	if c.Stream == "" {
		c.Stream = defaults.Stream
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = defaults.ConsumerGroup
	}
	if c.ConsumerName == "" {
		c.ConsumerName = defaults.ConsumerName
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = DefaultBlockTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = DefaultClaimInterval
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = DefaultClaimMinIdle
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	return c
}

// JobResult holds the result of processing a job
type JobResult struct {
	JobID     string
	MessageID string
	Success   bool
	// Retry leaves the message pending so the claim loop redelivers it.
	Retry    bool
	Error    error
	Duration time.Duration
	RunID    uuid.UUID
}

// Processor consumes sync jobs from a Redis stream and runs them
type Processor struct {
	streams *redis.Streams
	dlq     *redis.DeadLetterQueue
	syncer  Syncer
	config  ProcessorConfig
	logger  ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	jobsCh   chan redis.StreamMessage

	running bool
	mu      sync.RWMutex
}

// NewProcessor creates a new job processor. dlq may be nil.
func NewProcessor(
	streams *redis.Streams,
	dlq *redis.DeadLetterQueue,
	syncer Syncer,
	config ProcessorConfig,
	logger ectologger.Logger,
) *Processor {
	config = config.withDefaults()

	return &Processor{
		streams:  streams,
		dlq:      dlq,
		syncer:   syncer,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
		jobsCh:   make(chan redis.StreamMessage, config.BatchSize*2),
	}
}

// Start creates the consumer group and starts the consumer, claimer and workers
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrProcessorAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	p.logger.WithContext(ctx).Infof("Starting sync job processor: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.WorkerCount)

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.ConsumerGroup); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, i)
	}

	var feeders sync.WaitGroup
	feeders.Add(2)
	go p.consumeLoop(ctx, &feeders)
	go p.claimLoop(ctx, &feeders)

	go func() {
		<-p.stopCh
		feeders.Wait()
		close(p.jobsCh)
		wg.Wait()
		close(p.stoppedC)
	}()

	p.logger.WithContext(ctx).Info("Sync job processor started")
	return nil
}

// Stop stops the processor and waits for in-flight jobs
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping sync job processor...")
	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Sync job processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Sync job processor shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the processor is running
func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Processor) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		messages, err := p.streams.Consume(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName,
			p.config.BatchSize, p.config.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to consume sync jobs")
			select {
			case <-time.After(time.Second):
			case <-p.stopCh:
				return
			}
			continue
		}

		for _, msg := range messages {
			select {
			case p.jobsCh <- msg:
			case <-p.stopCh:
				return
			}
		}
	}
}

func (p *Processor) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if n, err := p.streams.Len(ctx, p.config.Stream); err == nil {
				metrics.QueueStreamLength.Set(float64(n))
			}
			for _, msg := range p.claimPendingMessages(ctx) {
				select {
				case p.jobsCh <- msg:
				case <-p.stopCh:
					return
				}
			}
		}
	}
}

// claimPendingMessages claims jobs idle longer than ClaimMinIdle and dead-letters those past MaxRetries.
func (p *Processor) claimPendingMessages(ctx context.Context) []redis.StreamMessage {
	ctx, span := tracing.StartSpan(ctx, "Processor.claimPendingMessages")
	defer span.End()

	pending, err := p.streams.Pending(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.BatchSize)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending sync jobs")
		return nil
	}

	var staleIDs []string
	for _, msg := range pending {
		if msg.Idle < p.config.ClaimMinIdle {
			continue
		}
		if msg.RetryCount > int64(p.config.MaxRetries) {
			p.moveToDLQ(ctx, msg.ID, int(msg.RetryCount), "exceeded maximum retry count")
			continue
		}
		staleIDs = append(staleIDs, msg.ID)
	}
	if len(staleIDs) == 0 {
		return nil
	}

	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, staleIDs...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim pending sync jobs")
		return nil
	}

	p.logger.WithContext(ctx).Infof("Claimed %d stale sync jobs", len(claimed))
	return claimed
}

func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %d started", id)
	for msg := range p.jobsCh {
		p.handle(ctx, msg)
	}
	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

// handle processes msg and acks it unless the job asked to be retried.
func (p *Processor) handle(ctx context.Context, msg redis.StreamMessage) *JobResult {
	metrics.QueueJobsInFlight.Inc()
	defer metrics.QueueJobsInFlight.Dec()

	result := p.processJob(ctx, msg)
	switch {
	case result.Success:
		metrics.QueueJobsProcessed.WithLabelValues("success").Inc()
	case result.Retry:
		metrics.QueueJobsProcessed.WithLabelValues("retry").Inc()
		p.logger.WithContext(ctx).WithError(result.Error).Warnf("Sync job %s failed, will be retried", result.JobID)
		return result
	default:
		metrics.QueueJobsProcessed.WithLabelValues("failure").Inc()
	}

	if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, msg.ID); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", msg.ID)
	}
	return result
}

// processJob runs the sync pass a message asks for.
func (p *Processor) processJob(ctx context.Context, msg redis.StreamMessage) *JobResult {
	start := time.Now()
	result := &JobResult{MessageID: msg.ID}

	job := msg.Job
	if job == nil {
		result.Error = ErrInvalidJobMessage
		return result
	}
	result.JobID = job.ID

	ctx = tracing.ContinueTrace(ctx, job.TraceParent, job.TraceState)
	ctx, span := tracing.StartSpan(ctx, "Processor.processJob")
	defer span.End()

	ctx = fernctx.SetRequestID(ctx, job.ID)
	ctx = fernctx.SetWorkspaceID(ctx, job.WorkspaceID)
	ctx = fernctx.SetIntegration(ctx, job.IntegrationID, job.Provider)

	integrationID, err := uuid.Parse(job.IntegrationID)
	if err != nil {
		result.Error = fmt.Errorf("%w: integration_id %q: %w", ErrInvalidJobMessage, job.IntegrationID, err)
		p.logger.WithContext(ctx).WithError(result.Error).Warnf("Dropping sync job %s", job.ID)
		return result
	}

	trigger := models.SyncTrigger(job.Trigger)
	if trigger == "" {
		trigger = models.SyncTriggerSchedule
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	p.logger.WithContext(ctx).Infof("Processing sync job %s for integration %s (trigger=%s)", job.ID, integrationID, trigger)

	pass, err := p.syncer.SyncByID(ctx, integrationID, trigger)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			p.logger.WithContext(ctx).Infof("Integration %s no longer exists, dropping sync job %s", integrationID, job.ID)
			return result
		}
		result.Retry = true
		return result
	}

	result.RunID = pass.RunID
	result.Error = pass.Error
	switch {
	case pass.Success, errors.Is(pass.Error, orchestrator.ErrSyncInProgress):
		result.Success = true
	default:
		result.Retry = Retryable(pass.Error)
	}

	p.logger.WithContext(ctx).Infof("Sync job %s finished in %s: success=%t retry=%t", job.ID, result.Duration, result.Success, result.Retry)
	return result
}

// Retryable reports whether a failed pass may succeed if run again unchanged.
// Credential, configuration and page-ceiling failures are left for the next schedule.
func Retryable(err error) bool {
	switch orchestrator.ErrorKind(err) {
	case "remote_fetch", "persistence", "cancelled", "lock_unavailable", "internal":
		return true
	default:
		return false
	}
}

// moveToDLQ records a job that exhausted its retries and acks it.
func (p *Processor) moveToDLQ(ctx context.Context, messageID string, attempts int, reason string) {
	ctx, span := tracing.StartSpan(ctx, "Processor.moveToDLQ")
	defer span.End()

	defer func() {
		if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, messageID); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s after DLQ", messageID)
		}
	}()

	if p.dlq == nil {
		p.logger.WithContext(ctx).Warnf("Dropping sync job message %s after %d attempts: %s", messageID, attempts, reason)
		return
	}

	msg, err := p.streams.Get(ctx, p.config.Stream, messageID)
	if err != nil || msg == nil || msg.Job == nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to load message %s for DLQ", messageID)
		return
	}

	job := msg.Job
	entry := &redis.DLQEntry{
		WorkspaceID:   job.WorkspaceID,
		IntegrationID: job.IntegrationID,
		OriginalJob:   job,
		ErrorMessage:  reason,
		Attempts:      attempts,
	}
	if _, err := p.dlq.Add(ctx, entry); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to add sync job %s to DLQ", job.ID)
		return
	}
	metrics.QueueJobsProcessed.WithLabelValues("dead_lettered").Inc()
}
