package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const syncRunsTable = "sync_runs"

var syncRunStruct = database.NewStruct(new(models.SyncRun))

// SyncRunRepository stores the history of sync passes
type SyncRunRepository struct {
	*Repository
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db database.DB, logger ectologger.Logger) *SyncRunRepository {
	return &SyncRunRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create records the start of a pass
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.Create")
	defer span.End()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.SyncRunStatusRunning
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncRunsTable).
		Cols("id", "integration_id", "workspace_id", "provider", "trigger", "status", "started_at").
		Values(run.ID, run.IntegrationID, run.WorkspaceID, run.Provider, run.Trigger, run.Status, run.StartedAt)

	query, args := ib.Build()
	if _, err := r.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": run.IntegrationID,
			"sync_run_id":    run.ID,
		}).Error("failed to create sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sync run")
	}

	return nil
}

// Complete writes the outcome and counters of a finished pass
func (r *SyncRunRepository) Complete(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.Complete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", run.Status),
			ub.Assign("pages", run.Pages),
			ub.Assign("records_fetched", run.RecordsFetched),
			ub.Assign("records_upserted", run.RecordsUpserted),
			ub.Assign("records_failed", run.RecordsFailed),
			ub.Assign("records_reconciled", run.RecordsReconciled),
			ub.Assign("token_refreshed", run.TokenRefreshed),
			ub.Assign("auth_retries", run.AuthRetries),
			ub.Assign("error_kind", run.ErrorKind),
			ub.Assign("error_message", run.ErrorMessage),
			ub.Assign("completed_at", run.CompletedAt),
		).
		Where(ub.Equal("id", run.ID))

	query, args := ub.Build()
	result, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": run.ID,
		}).Error("failed to complete sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete sync run")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NotFound("sync run %s does not exist", run.ID)
	}

	return nil
}

// ListByIntegration returns the most recent runs for an integration, newest first
func (r *SyncRunRepository) ListByIntegration(ctx context.Context, integrationID uuid.UUID, limit int) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.ListByIntegration")
	defer span.End()

	workspaceID, scoped, err := WorkspaceScope(ctx)
	if err != nil {
		return nil, err
	}

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("integration_id", integrationID))
	if scoped {
		sb.Where(sb.Equal("workspace_id", workspaceID))
	}
	sb.OrderBy("started_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var runs []models.SyncRun
	if err := r.Conn(ctx).SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
		}).Error("failed to list sync runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync runs")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integrationID,
	}).Debugf("Listed %d %s", len(runs), syncRunsTable)
	return runs, nil
}
