package repositories_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return database.NewDatabaseInstance(sqlx.NewDb(raw, "postgres"), getTestLogger()), mock
}

// assertStatus asserts that err is an HTTP error with the given code
func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, code, httperror.GetStatusCode(err))
}

var integrationColumns = []string{
	"id", "provider", "user_id", "workspace_id", "access_token", "refresh_token", "expires_at",
	"status", "config", "profile", "last_sync", "created_at", "updated_at",
}

func TestIntegrationRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	id := uuid.New()
	workspaceID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .* FROM integrations WHERE id = \\$1").
		WillReturnRows(sqlmock.NewRows(integrationColumns).AddRow(
			id.String(), "todoist", uuid.New().String(), workspaceID.String(), "access", "refresh", nil,
			"active", []byte(`{"direction":"inbound"}`), []byte(`{"user_id":"42"}`), nil, now, now,
		))

	integration, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, integration.ID)
	assert.Equal(t, models.ProviderTodoist, integration.Provider)
	assert.Equal(t, workspaceID, integration.WorkspaceID)
	require.NotNil(t, integration.RefreshToken)
	assert.Equal(t, "refresh", *integration.RefreshToken)
	assert.Nil(t, integration.ExpiresAt)
	assert.True(t, integration.IsExpired(now))
	assert.Equal(t, "inbound", integration.ConfigString("direction"))
	assert.Equal(t, "42", integration.ProfileString("user_id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_GetByID_WorkspaceScoped(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	id := uuid.New()
	workspaceID := uuid.New()
	ctx := appctx.SetWorkspaceID(context.Background(), workspaceID.String())

	mock.ExpectQuery("SELECT .* FROM integrations WHERE id = \\$1 AND workspace_id = \\$2").
		WithArgs(id, workspaceID).
		WillReturnRows(sqlmock.NewRows(integrationColumns))

	_, err := repo.GetByID(ctx, id)
	assertStatus(t, err, http.StatusNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_GetByID_InvalidWorkspace(t *testing.T) {
	db, _ := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	ctx := appctx.SetWorkspaceID(context.Background(), "not-a-uuid")
	_, err := repo.GetByID(ctx, uuid.New())
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestIntegrationRepository_UpdateCredentials(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	id := uuid.New()
	refresh := "new-refresh"
	expires := time.Now().Add(time.Hour).UTC()

	mock.ExpectExec("UPDATE integrations SET access_token = \\$1, refresh_token = \\$2, expires_at = \\$3, status = \\$4").
		WithArgs("new-access", refresh, expires, "active", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateCredentials(context.Background(), id, models.Credentials{
		AccessToken:  "new-access",
		RefreshToken: &refresh,
		ExpiresAt:    &expires,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_UpdateStatus_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	mock.ExpectExec("UPDATE integrations SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), uuid.New(), models.IntegrationStatusError)
	assertStatus(t, err, http.StatusNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_MarkSynced(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE integrations SET last_sync = \\$1, status = \\$2").
		WithArgs(at, "active", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSynced(context.Background(), id, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_ListDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM integrations WHERE .*last_sync IS NULL.*ORDER BY last_sync ASC NULLS FIRST LIMIT").
		WillReturnRows(sqlmock.NewRows(integrationColumns).
			AddRow(uuid.New().String(), "asana", uuid.New().String(), uuid.New().String(), "a", nil, nil,
				"active", []byte(`{}`), []byte(`{}`), nil, now, now))

	due, err := repo.ListDue(context.Background(), now.Add(-15*time.Minute), now.Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.ProviderAsana, due[0].Provider)
	assert.Nil(t, due[0].RefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_DeleteUsesTransactionOnContext(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM integrations WHERE id = \\$1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := database.WithTx(context.Background(), db, func(ctx context.Context, _ database.Tx) error {
		return repo.Delete(ctx, uuid.New())
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())

	existingID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO tasks .* ON CONFLICT \\(source, external_id, host, workspace_id\\) DO UPDATE .*RETURNING id, created_at, updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(existingID.String(), now, now))

	record := &models.LocalRecord{
		WorkspaceID:   uuid.New(),
		IntegrationID: uuid.New(),
		Source:        models.ProviderTodoist,
		ExternalID:    "123",
		Host:          "todoist.com",
		Name:          "Write report",
		Description:   database.NewJSONB(richtext.FromPlain("draft")),
	}
	require.NoError(t, repo.Upsert(context.Background(), models.TargetTasks, record))

	assert.Equal(t, existingID, record.ID, "conflicting rows keep the stored id")
	assert.Equal(t, models.RecordStatusPending, record.Status)
	assert.Equal(t, now, record.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_UpsertFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())

	mock.ExpectQuery("INSERT INTO events").WillReturnError(assert.AnError)

	err := repo.Upsert(context.Background(), models.TargetEvents, &models.LocalRecord{ExternalID: "evt"})
	assertStatus(t, err, http.StatusInternalServerError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_RejectsUnknownTarget(t *testing.T) {
	db, _ := newMockDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())

	err := repo.Upsert(context.Background(), models.RecordTarget("users; --"), &models.LocalRecord{})
	require.Error(t, err)

	_, err = repo.CompleteMissing(context.Background(), "notes", repositories.ReconcileScope{}, nil, time.Now())
	require.Error(t, err)
}

func TestRecordRepository_CompleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())

	scope := repositories.ReconcileScope{
		IntegrationID: uuid.New(),
		WorkspaceID:   uuid.New(),
		Source:        models.ProviderTodoist,
	}
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE tasks SET status = \\$1, completed_at = \\$2, .* WHERE integration_id = \\$3 AND workspace_id = \\$4 AND source = \\$5 AND status = ANY\\(\\$6\\) AND NOT \\(external_id = ANY\\(\\$7\\)\\)").
		WillReturnResult(sqlmock.NewResult(0, 1))

	completed, err := repo.CompleteMissing(context.Background(), models.TargetTasks, scope, []string{"A", "B"}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_DeletePendingUndated(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())

	integrationID := uuid.New()
	mock.ExpectExec("DELETE FROM tasks WHERE integration_id = \\$1 AND status = \\$2 AND due_date IS NULL AND start_at IS NULL").
		WithArgs(integrationID, "pending").
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := repo.DeletePendingUndated(context.Background(), models.TargetTasks, integrationID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunRepository_CreateComplete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewSyncRunRepository(db, getTestLogger())

	mock.ExpectExec("INSERT INTO sync_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sync_runs SET status = \\$1").WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.SyncRun{
		IntegrationID: uuid.New(),
		WorkspaceID:   uuid.New(),
		Provider:      models.ProviderAsana,
		Trigger:       models.SyncTriggerManual,
		StartedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), run))
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, models.SyncRunStatusRunning, run.Status)

	completedAt := time.Now().UTC()
	run.Status = models.SyncRunStatusSuccess
	run.RecordsUpserted = 60
	run.CompletedAt = &completedAt
	require.NoError(t, repo.Complete(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunRepository_ListByIntegration(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repositories.NewSyncRunRepository(db, getTestLogger())

	integrationID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM sync_runs WHERE integration_id = \\$1 ORDER BY started_at DESC LIMIT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "integration_id", "workspace_id", "provider", "trigger", "status", "pages", "records_fetched",
			"records_upserted", "records_failed", "records_reconciled", "token_refreshed", "auth_retries",
			"error_kind", "error_message", "started_at", "completed_at",
		}).AddRow(
			uuid.New().String(), integrationID.String(), uuid.New().String(), "github", "schedule", "failed",
			1, 10, 9, 1, 0, true, 1, "authentication_failed", "unauthorized", now, now,
		))

	runs, err := repo.ListByIntegration(context.Background(), integrationID, 20)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.SyncRunStatusFailed, runs[0].Status)
	assert.True(t, runs[0].TokenRefreshed)
	require.NotNil(t, runs[0].ErrorKind)
	assert.Equal(t, "authentication_failed", *runs[0].ErrorKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
