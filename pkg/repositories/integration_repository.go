package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const integrationsTable = "integrations"

var integrationStruct = database.NewStruct(new(models.Integration))

// IntegrationRepository handles database operations for integrations
type IntegrationRepository struct {
	*Repository
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db database.DB, logger ectologger.Logger) *IntegrationRepository {
	return &IntegrationRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a connected integration. The OAuth connect flow that produces it lives outside this service.
func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Create")
	defer span.End()

	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	if integration.Status == "" {
		integration.Status = models.IntegrationStatusActive
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(integrationsTable).
		Cols("id", "provider", "user_id", "workspace_id", "access_token", "refresh_token", "expires_at",
			"status", "config", "profile", "last_sync", "created_at", "updated_at").
		Values(integration.ID, integration.Provider, integration.UserID, integration.WorkspaceID,
			integration.AccessToken, integration.RefreshToken, integration.ExpiresAt, integration.Status,
			integration.Config, integration.Profile, integration.LastSync,
			database.Now, database.Now).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.Conn(ctx).QueryRowContext(ctx, query, args...).Scan(&integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integration.ID,
		}).Error("failed to create integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
		"provider":       integration.Provider,
	}).Debugf("Created %s", integrationsTable)
	return nil
}

// GetByID retrieves an integration by ID, scoped to the caller's workspace when one is on ctx
func (r *IntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.GetByID")
	defer span.End()

	workspaceID, scoped, err := WorkspaceScope(ctx)
	if err != nil {
		return nil, err
	}

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Equal("id", id))
	if scoped {
		sb.Where(sb.Equal("workspace_id", workspaceID))
	}

	query, args := sb.Build()
	var integration models.Integration
	err = r.Conn(ctx).GetContext(ctx, &integration, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("integration %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to get integration by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get integration by ID")
	}

	return &integration, nil
}

// UpdateCredentials stores a refreshed token set and marks the integration active
func (r *IntegrationRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, creds models.Credentials) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.UpdateCredentials")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable)
	ub.Touch(
		ub.Assign("access_token", creds.AccessToken),
		ub.Assign("refresh_token", creds.RefreshToken),
		ub.Assign("expires_at", creds.ExpiresAt),
		ub.Assign("status", models.IntegrationStatusActive),
	)
	ub.Where(ub.Equal("id", id))

	return r.execOne(ctx, ub, id, "update integration credentials")
}

// UpdateStatus sets the integration status without touching last_sync
func (r *IntegrationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable)
	ub.Touch(ub.Assign("status", status))
	ub.Where(ub.Equal("id", id))

	return r.execOne(ctx, ub, id, "update integration status")
}

// MarkSynced records a successful pass
func (r *IntegrationRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.MarkSynced")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable)
	ub.Touch(
		ub.Assign("last_sync", at),
		ub.Assign("status", models.IntegrationStatusActive),
	)
	ub.Where(ub.Equal("id", id))

	return r.execOne(ctx, ub, id, "mark integration synced")
}

// ListDue returns integrations the scheduler should enqueue: active ones not synced since syncedBefore,
// and errored ones untouched since failedBefore. Oldest first.
func (r *IntegrationRepository) ListDue(ctx context.Context, syncedBefore, failedBefore time.Time, limit int) ([]models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.ListDue")
	defer span.End()

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Or(
		sb.And(
			sb.Equal("status", models.IntegrationStatusActive),
			sb.Or(sb.IsNull("last_sync"), sb.LessThan("last_sync", syncedBefore)),
		),
		sb.And(
			sb.Equal("status", models.IntegrationStatusError),
			sb.LessThan("updated_at", failedBefore),
		),
	))
	sb.OrderBy("last_sync ASC NULLS FIRST")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var integrations []models.Integration
	if err := r.Conn(ctx).SelectContext(ctx, &integrations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list due integrations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list due integrations")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_count": len(integrations),
	}).Debugf("Listed due %s", integrationsTable)
	return integrations, nil
}

// Delete deletes an integration by ID
func (r *IntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(integrationsTable).
		Where(db.Equal("id", id))

	return r.execOne(ctx, db, id, "delete integration")
}

type builder interface {
	Build() (string, []any)
}

// execOne runs a single-row statement and maps zero affected rows to a 404.
func (r *IntegrationRepository) execOne(ctx context.Context, b builder, id uuid.UUID, action string) error {
	query, args := b.Build()
	result, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Errorf("failed to %s", action)
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to %s", action)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Errorf("failed to %s", action)
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to %s", action)
	}
	if rows == 0 {
		return NotFound("integration %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": id,
	}).Debugf("%s: %s", action, integrationsTable)
	return nil
}
