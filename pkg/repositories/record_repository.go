package repositories

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var recordStruct = database.NewStruct(new(models.LocalRecord))

// recordKeyColumns is the unique key every upsert conflicts on.
var recordKeyColumns = []string{"source", "external_id", "host", "workspace_id"}

// recordUpdateColumns are overwritten when a record with the same key already exists.
var recordUpdateColumns = []string{
	"integration_id", "name", "description", "external_data", "url", "assignee", "creator",
	"project_id", "status", "completed_at", "due_date", "start_at", "end_at",
}

// ReconcileScope selects the local records one integration owns.
type ReconcileScope struct {
	IntegrationID uuid.UUID
	WorkspaceID   uuid.UUID
	Source        models.Provider
}

// RecordRepository handles the tasks and events tables
type RecordRepository struct {
	*Repository
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db database.DB, logger ectologger.Logger) *RecordRepository {
	return &RecordRepository{
		Repository: NewRepository(db, logger),
	}
}

func tableFor(target models.RecordTarget) (string, error) {
	switch target {
	case models.TargetTasks, models.TargetEvents:
		return string(target), nil
	default:
		return "", fmt.Errorf("unknown record target %q", target)
	}
}

// Upsert inserts a record or overwrites the existing row with the same (source, external_id, host, workspace_id)
func (r *RecordRepository) Upsert(ctx context.Context, target models.RecordTarget, record *models.LocalRecord) error {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.Upsert")
	defer span.End()

	table, err := tableFor(target)
	if err != nil {
		return err
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = models.RecordStatusPending
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table).
		Cols("id", "workspace_id", "integration_id", "source", "external_id", "host", "name", "description",
			"external_data", "url", "assignee", "creator", "project_id", "status", "completed_at", "due_date",
			"start_at", "end_at", "created_at", "updated_at").
		Values(record.ID, record.WorkspaceID, record.IntegrationID, record.Source, record.ExternalID, record.Host,
			record.Name, record.Description, record.ExternalData, record.URL, record.Assignee, record.Creator,
			record.ProjectID, record.Status, record.CompletedAt, record.DueDate, record.StartAt, record.EndAt,
			database.Now, database.Now)
	ib.OnConflictOverwrite(recordKeyColumns, recordUpdateColumns...).
		Returning("id", "created_at", "updated_at")

	query, args := ib.Build()
	err = r.Conn(ctx).QueryRowContext(ctx, query, args...).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_id": record.ExternalID,
			"source":      record.Source,
			"table":       table,
		}).Error("failed to upsert record")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert %s record %s", table, record.ExternalID)
	}

	return nil
}

// CompleteMissing marks every non-terminal record in scope whose external id is not in activeIDs as completed.
// Returns the number of records completed.
func (r *RecordRepository) CompleteMissing(ctx context.Context, target models.RecordTarget, scope ReconcileScope, activeIDs []string, now time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.CompleteMissing")
	defer span.End()

	table, err := tableFor(target)
	if err != nil {
		return 0, err
	}
	if activeIDs == nil {
		activeIDs = []string{}
	}

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Touch(
		ub.Assign("status", models.RecordStatusCompleted),
		ub.Assign("completed_at", now),
	)
	ub.Where(
		ub.Equal("integration_id", scope.IntegrationID),
		ub.Equal("workspace_id", scope.WorkspaceID),
		ub.Equal("source", scope.Source),
		fmt.Sprintf("status = ANY(%s)", ub.Var(pq.Array(models.NonTerminalStatuses()))),
		fmt.Sprintf("NOT (external_id = ANY(%s))", ub.Var(pq.Array(activeIDs))),
	)

	query, args := ub.Build()
	result, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": scope.IntegrationID,
			"table":          table,
		}).Error("failed to reconcile records")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to reconcile %s", table)
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": scope.IntegrationID,
		"active_count":   len(activeIDs),
		"completed":      rows,
	}).Debugf("Reconciled %s", table)
	return rows, nil
}

// DeletePendingUndated removes the pending records of an integration that have no due date or start time.
// Dated or completed records stay behind when an integration is disconnected.
func (r *RecordRepository) DeletePendingUndated(ctx context.Context, target models.RecordTarget, integrationID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.DeletePendingUndated")
	defer span.End()

	table, err := tableFor(target)
	if err != nil {
		return 0, err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table).
		Where(
			db.Equal("integration_id", integrationID),
			db.Equal("status", models.RecordStatusPending),
			db.IsNull("due_date"),
			db.IsNull("start_at"),
		)

	query, args := db.Build()
	result, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
			"table":          table,
		}).Error("failed to delete pending records")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete pending %s", table)
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integrationID,
		"deleted":        rows,
	}).Debugf("Deleted pending %s", table)
	return rows, nil
}

// ListByIntegration returns the records an integration owns, oldest first
func (r *RecordRepository) ListByIntegration(ctx context.Context, target models.RecordTarget, integrationID uuid.UUID) ([]models.LocalRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.ListByIntegration")
	defer span.End()

	table, err := tableFor(target)
	if err != nil {
		return nil, err
	}

	sb := recordStruct.SelectFrom(table)
	sb.Where(sb.Equal("integration_id", integrationID))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var records []models.LocalRecord
	if err := r.Conn(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
		}).Errorf("failed to list %s", table)
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list %s", table)
	}
	return records, nil
}
