package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IntegrationRepo defines the interface for integration repository operations
type IntegrationRepo interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error)
	UpdateCredentials(ctx context.Context, id uuid.UUID, creds models.Credentials) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	ListDue(ctx context.Context, syncedBefore, failedBefore time.Time, limit int) ([]models.Integration, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecordRepo defines the interface for task / event repository operations
type RecordRepo interface {
	Upsert(ctx context.Context, target models.RecordTarget, record *models.LocalRecord) error
	CompleteMissing(ctx context.Context, target models.RecordTarget, scope ReconcileScope, activeIDs []string, now time.Time) (int64, error)
	DeletePendingUndated(ctx context.Context, target models.RecordTarget, integrationID uuid.UUID) (int64, error)
	ListByIntegration(ctx context.Context, target models.RecordTarget, integrationID uuid.UUID) ([]models.LocalRecord, error)
}

// SyncRunRepo defines the interface for sync run history operations
type SyncRunRepo interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Complete(ctx context.Context, run *models.SyncRun) error
	ListByIntegration(ctx context.Context, integrationID uuid.UUID, limit int) ([]models.SyncRun, error)
}

var (
	_ IntegrationRepo = (*IntegrationRepository)(nil)
	_ RecordRepo      = (*RecordRepository)(nil)
	_ SyncRunRepo     = (*SyncRunRepository)(nil)
)
