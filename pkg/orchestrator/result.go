package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SyncResult is the outcome of one RunSync call.
type SyncResult struct {
	RunID         uuid.UUID
	IntegrationID uuid.UUID
	WorkspaceID   uuid.UUID
	Provider      models.Provider
	Trigger       models.SyncTrigger

	Success bool
	Error   error

	// RecordErrors accumulates the per-record failures that were skipped. Use multierr.Errors to split it.
	RecordErrors error

	Pages          int
	Fetched        int
	Upserted       int
	Failed         int
	Reconciled     int
	TokenRefreshed bool
	AuthRetries    int

	StartedAt   time.Time
	CompletedAt time.Time
}

func (r *SyncResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// resetPass clears the counters of an abandoned pass before it is rerun.
func (r *SyncResult) resetPass() {
	r.Pages = 0
	r.Fetched = 0
	r.Upserted = 0
	r.Failed = 0
	r.RecordErrors = nil
}

func (r *SyncResult) toRun() *models.SyncRun {
	run := &models.SyncRun{
		ID:                r.RunID,
		IntegrationID:     r.IntegrationID,
		WorkspaceID:       r.WorkspaceID,
		Provider:          r.Provider,
		Trigger:           r.Trigger,
		Status:            models.SyncRunStatusSuccess,
		Pages:             r.Pages,
		RecordsFetched:    r.Fetched,
		RecordsUpserted:   r.Upserted,
		RecordsFailed:     r.Failed,
		RecordsReconciled: r.Reconciled,
		TokenRefreshed:    r.TokenRefreshed,
		AuthRetries:       r.AuthRetries,
		StartedAt:         r.StartedAt,
	}
	if !r.CompletedAt.IsZero() {
		completed := r.CompletedAt
		run.CompletedAt = &completed
	}
	if r.Error != nil {
		kind := ErrorKind(r.Error)
		message := r.Error.Error()
		run.Status = models.SyncRunStatusFailed
		run.ErrorKind = &kind
		run.ErrorMessage = &message
	}
	return run
}
