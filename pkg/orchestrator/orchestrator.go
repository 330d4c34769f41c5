// Package orchestrator runs sync passes: it keeps an integration's token fresh, pages through the provider,
// upserts what it finds in batches, reconciles what the provider stopped reporting and records the
// integration's health.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/richtext"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Locker serializes work on one integration across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// EventPublisher receives sync lifecycle events.
type EventPublisher interface {
	PublishSyncEvent(ctx context.Context, evt *kafka.SyncEventMessage) error
}

// AdapterSource resolves the adapter for a provider.
type AdapterSource interface {
	Get(provider models.Provider) (providers.Adapter, error)
}

// Orchestrator runs sync passes and disconnects integrations.
type Orchestrator struct {
	integrations repositories.IntegrationRepo
	records      repositories.RecordRepo
	runs         repositories.SyncRunRepo
	adapters     AdapterSource
	db           database.DB

	locker    Locker
	events    EventPublisher
	normalize richtext.Normalizer
	validate  *validator.Validate

	config Config
	logger ectologger.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator. locker and events may be nil.
func NewOrchestrator(
	integrations repositories.IntegrationRepo,
	records repositories.RecordRepo,
	runs repositories.SyncRunRepo,
	adapters AdapterSource,
	db database.DB,
	locker Locker,
	events EventPublisher,
	normalize richtext.Normalizer,
	config Config,
	logger ectologger.Logger,
) *Orchestrator {
	if normalize == nil {
		normalize = richtext.Normalize
	}
	return &Orchestrator{
		integrations: integrations,
		records:      records,
		runs:         runs,
		adapters:     adapters,
		db:           db,
		locker:       locker,
		events:       events,
		normalize:    normalize,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		config:       config.withDefaults(),
		logger:       logger,
		now:          time.Now,
	}
}

// SetClock replaces the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// SyncByID loads an integration and runs a pass for it.
func (o *Orchestrator) SyncByID(ctx context.Context, id uuid.UUID, trigger models.SyncTrigger) (*SyncResult, error) {
	integration, err := o.integrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.RunSync(ctx, integration, trigger), nil
}

// RunSync performs one sync pass for integration. Failures are reported on the result, never panicked or returned.
func (o *Orchestrator) RunSync(ctx context.Context, integration *models.Integration, trigger models.SyncTrigger) *SyncResult {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.RunSync")
	defer span.End()

	ctx = fernctx.SetIntegration(ctx, integration.ID.String(), string(integration.Provider))
	result := &SyncResult{
		RunID:         uuid.New(),
		IntegrationID: integration.ID,
		WorkspaceID:   integration.WorkspaceID,
		Provider:      integration.Provider,
		Trigger:       trigger,
		StartedAt:     o.now().UTC(),
	}

	if err := o.validate.Struct(integration); err != nil {
		o.abandon(ctx, result, fmt.Errorf("%w: %w", ErrInvalidIntegration, err))
		return result
	}

	err := o.withLock(ctx, integration.ID, func(ctx context.Context) error {
		return o.run(ctx, integration, result)
	})
	switch {
	case errors.Is(err, ErrSyncInProgress):
		metrics.LockContentionTotal.WithLabelValues(string(integration.Provider)).Inc()
		metrics.SyncPassesTotal.WithLabelValues(string(integration.Provider), "skipped").Inc()
		o.logger.WithContext(ctx).Infof("Skipping sync for integration %s: another pass holds the lock", integration.ID)
		result.Error = err
		result.CompletedAt = o.now().UTC()
	case err != nil && result.Error == nil:
		// the pass never ran: the lock itself could not be taken
		o.abandon(ctx, result, fmt.Errorf("%w: %w", ErrLockUnavailable, err))
	}

	return result
}

// abandon records a pass that failed before it started. Integration status is left alone.
func (o *Orchestrator) abandon(ctx context.Context, result *SyncResult, err error) {
	result.CompletedAt = o.now().UTC()
	result.Error = err
	result.Success = false

	o.startRun(ctx, result)
	o.completeRun(ctx, result)
	o.recordMetrics(result)
	o.publish(ctx, result, kafka.EventSyncFailed)

	o.logger.WithContext(ctx).WithError(err).Errorf("Sync pass for integration %s could not start: kind=%s", result.IntegrationID, ErrorKind(err))
}

func (o *Orchestrator) withLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	if o.locker == nil {
		return fn(ctx)
	}
	err := o.locker.WithLock(ctx, redis.SyncLockKey(id.String()), o.config.LockTTL, fn)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return ErrSyncInProgress
	}
	return err
}

// run executes a locked pass and records its outcome.
func (o *Orchestrator) run(ctx context.Context, integration *models.Integration, result *SyncResult) error {
	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
		"provider":       integration.Provider,
		"workspace_id":   integration.WorkspaceID,
		"run_id":         result.RunID,
	})
	log.Infof("Starting sync pass (trigger=%s)", result.Trigger)

	o.startRun(ctx, result)
	o.publish(ctx, result, kafka.EventSyncStarted)

	err := o.execute(ctx, integration, result)

	result.CompletedAt = o.now().UTC()
	result.Error = err
	result.Success = err == nil

	o.finalize(ctx, integration, result)
	o.completeRun(ctx, result)
	o.recordMetrics(result)

	if err != nil {
		log.WithError(err).Errorf("Sync pass failed after %s: kind=%s pages=%d upserted=%d failed=%d",
			result.Duration(), ErrorKind(err), result.Pages, result.Upserted, result.Failed)
		o.publish(ctx, result, kafka.EventSyncFailed)
		return err
	}

	log.Infof("Sync pass completed in %s: pages=%d fetched=%d upserted=%d failed=%d reconciled=%d",
		result.Duration(), result.Pages, result.Fetched, result.Upserted, result.Failed, result.Reconciled)
	o.publish(ctx, result, kafka.EventSyncCompleted)
	return nil
}

// execute is the pass itself: freshness check, paginated sync with one re-auth, then reconciliation.
func (o *Orchestrator) execute(ctx context.Context, integration *models.Integration, result *SyncResult) error {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.execute")
	defer span.End()

	adapter, err := o.adapters.Get(integration.Provider)
	if err != nil {
		return err
	}

	if adapter.Endpoint().Refreshable() && integration.IsExpired(o.now()) {
		if !integration.HasRefreshToken() {
			return ErrMissingRefreshCredential
		}
		if err := o.refresh(ctx, adapter, integration, result, "expired"); err != nil {
			return err
		}
	}

	var active []string
	for attempt := 0; ; attempt++ {
		active, err = o.syncPages(ctx, adapter, integration, result)
		if err == nil {
			break
		}
		if !httpclient.IsAuthError(err) {
			return err
		}
		if attempt > 0 || !adapter.Endpoint().Refreshable() || !integration.HasRefreshToken() {
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}

		o.logger.WithContext(ctx).WithError(err).Warnf("Provider %s rejected the access token, refreshing and restarting the pass", integration.Provider)
		metrics.AuthRetriesTotal.WithLabelValues(string(integration.Provider)).Inc()
		result.AuthRetries++
		result.resetPass()

		if err := o.refresh(ctx, adapter, integration, result, "unauthorized"); err != nil {
			return err
		}
	}

	if adapter.Reconciles() {
		o.reconcile(ctx, adapter, integration, active, result)
	}
	return nil
}

// refresh exchanges the refresh token and persists the new credentials. Both failures are fatal for the pass.
func (o *Orchestrator) refresh(ctx context.Context, adapter providers.Adapter, integration *models.Integration, result *SyncResult, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.refresh")
	defer span.End()

	provider := string(integration.Provider)
	token, err := adapter.RefreshToken(ctx, *integration.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(provider, reason, "failure").Inc()
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = *integration.RefreshToken
	}
	creds := models.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: &refreshToken,
		ExpiresAt:    token.ExpiresAt,
	}
	if err := o.integrations.UpdateCredentials(ctx, integration.ID, creds); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(provider, reason, "failure").Inc()
		return fmt.Errorf("%w: refreshed credentials: %w", ErrPersistence, err)
	}

	integration.AccessToken = creds.AccessToken
	integration.RefreshToken = creds.RefreshToken
	integration.ExpiresAt = creds.ExpiresAt
	integration.Status = models.IntegrationStatusActive
	result.TokenRefreshed = true

	metrics.TokenRefreshesTotal.WithLabelValues(provider, reason, "success").Inc()
	o.logger.WithContext(ctx).Infof("Refreshed %s access token for integration %s (%s)", provider, integration.ID, reason)
	return nil
}

// reconcile completes local records the provider no longer lists. Errors are logged, not returned.
func (o *Orchestrator) reconcile(ctx context.Context, adapter providers.Adapter, integration *models.Integration, active []string, result *SyncResult) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.reconcile")
	defer span.End()

	scope := repositories.ReconcileScope{
		IntegrationID: integration.ID,
		WorkspaceID:   integration.WorkspaceID,
		Source:        integration.Provider,
	}
	completed, err := o.records.CompleteMissing(ctx, adapter.Target(), scope, active, o.now().UTC())
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Errorf("Failed to reconcile %s for integration %s", adapter.Target(), integration.ID)
		return
	}

	result.Reconciled = int(completed)
	if completed > 0 {
		o.logger.WithContext(ctx).Infof("Completed %d %s no longer reported by %s", completed, adapter.Target(), integration.Provider)
	}
}

// finalize writes the integration's health. It runs even when ctx was cancelled, and its errors are swallowed.
func (o *Orchestrator) finalize(ctx context.Context, integration *models.Integration, result *SyncResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if result.Success {
		if err := o.integrations.MarkSynced(ctx, integration.ID, result.CompletedAt); err != nil {
			o.logger.WithContext(ctx).WithError(err).Warnf("Failed to record last sync for integration %s", integration.ID)
			return
		}
		integration.LastSync = &result.CompletedAt
		integration.Status = models.IntegrationStatusActive
		return
	}

	if err := o.integrations.UpdateStatus(ctx, integration.ID, models.IntegrationStatusError); err != nil {
		o.logger.WithContext(ctx).WithError(err).Warnf("Failed to mark integration %s as errored", integration.ID)
		return
	}
	integration.Status = models.IntegrationStatusError
}

func (o *Orchestrator) startRun(ctx context.Context, result *SyncResult) {
	if o.runs == nil {
		return
	}
	run := result.toRun()
	run.Status = models.SyncRunStatusRunning
	if err := o.runs.Create(ctx, run); err != nil {
		o.logger.WithContext(ctx).WithError(err).Warn("Failed to create sync run record")
	}
}

func (o *Orchestrator) completeRun(ctx context.Context, result *SyncResult) {
	if o.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := o.runs.Complete(ctx, result.toRun()); err != nil {
		o.logger.WithContext(ctx).WithError(err).Warn("Failed to complete sync run record")
	}
}

func (o *Orchestrator) publish(ctx context.Context, result *SyncResult, eventType string) {
	if o.events == nil {
		return
	}

	evt := &kafka.SyncEventMessage{
		Type:          eventType,
		WorkspaceID:   result.WorkspaceID.String(),
		IntegrationID: result.IntegrationID.String(),
		Provider:      string(result.Provider),
		RunID:         result.RunID.String(),
		Trigger:       string(result.Trigger),
		Status:        "running",
		Timestamp:     result.StartedAt,
	}
	if eventType != kafka.EventSyncStarted {
		run := result.toRun()
		evt.Status = string(run.Status)
		evt.Pages = result.Pages
		evt.Upserted = result.Upserted
		evt.Failed = result.Failed
		evt.Reconciled = result.Reconciled
		evt.DurationMs = result.Duration().Milliseconds()
		evt.Timestamp = result.CompletedAt
		if result.Error != nil {
			evt.Error = result.Error.Error()
			evt.ErrorKind = ErrorKind(result.Error)
		}
	}

	if err := o.events.PublishSyncEvent(context.WithoutCancel(ctx), evt); err != nil {
		o.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish %s event", eventType)
	}
}

func (o *Orchestrator) recordMetrics(result *SyncResult) {
	provider := string(result.Provider)
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.SyncPassesTotal.WithLabelValues(provider, outcome).Inc()
	metrics.SyncPassDuration.WithLabelValues(provider).Observe(result.Duration().Seconds())
	metrics.SyncRecordsTotal.WithLabelValues(provider, "upserted").Add(float64(result.Upserted))
	metrics.SyncRecordsTotal.WithLabelValues(provider, "failed").Add(float64(result.Failed))
	metrics.SyncRecordsTotal.WithLabelValues(provider, "reconciled").Add(float64(result.Reconciled))
}
