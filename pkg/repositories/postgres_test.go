package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/db"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

func getDevLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// startPostgres runs a throwaway postgres container and applies the schema migrations.
func startPostgres(t *testing.T) database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "user",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "fern",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	logger := getDevLogger()
	conn, err := database.Connect(ctx, database.Config{
		Host:     host,
		Port:     port.Int(),
		User:     "user",
		Password: "password",
		Name:     "fern",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	sqlDB, ok := database.SQLDB(conn)
	require.True(t, ok)
	migrations := database.NewMigrationService(logger, db.Migrations, &database.MigrationConfig{Dir: db.MigrationsDir})
	require.NoError(t, migrations.Migrate(sqlDB, "fern"))

	return conn
}

func TestPostgres_RecordLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	conn := startPostgres(t)
	logger := getDevLogger()
	integrations := repositories.NewIntegrationRepository(conn, logger)
	records := repositories.NewRecordRepository(conn, logger)
	runs := repositories.NewSyncRunRepository(conn, logger)
	ctx := context.Background()

	integration := &models.Integration{
		Provider:    models.ProviderTodoist,
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		AccessToken: "token",
		Config:      database.NewJSONB(map[string]any{}),
		Profile:     database.NewJSONB(map[string]any{}),
	}
	require.NoError(t, integrations.Create(ctx, integration))

	upsert := func(externalID string) *models.LocalRecord {
		record := &models.LocalRecord{
			WorkspaceID:   integration.WorkspaceID,
			IntegrationID: integration.ID,
			Source:        models.ProviderTodoist,
			ExternalID:    externalID,
			Host:          "todoist.com",
			Name:          "task " + externalID,
			ExternalData:  database.NewJSONB(map[string]any{"id": externalID}),
		}
		require.NoError(t, records.Upsert(ctx, models.TargetTasks, record))
		return record
	}

	first := upsert("A")
	upsert("B")
	upsert("C")

	// same key twice stays one row
	again := upsert("A")
	assert.Equal(t, first.ID, again.ID)

	stored, err := records.ListByIntegration(ctx, models.TargetTasks, integration.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	completed, err := records.CompleteMissing(ctx, models.TargetTasks, repositories.ReconcileScope{
		IntegrationID: integration.ID,
		WorkspaceID:   integration.WorkspaceID,
		Source:        models.ProviderTodoist,
	}, []string{"A", "B"}, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, completed)

	stored, err = records.ListByIntegration(ctx, models.TargetTasks, integration.ID)
	require.NoError(t, err)
	statuses := map[string]models.RecordStatus{}
	for _, r := range stored {
		statuses[r.ExternalID] = r.Status
	}
	assert.Equal(t, models.RecordStatusPending, statuses["A"])
	assert.Equal(t, models.RecordStatusPending, statuses["B"])
	assert.Equal(t, models.RecordStatusCompleted, statuses["C"])

	run := &models.SyncRun{
		IntegrationID: integration.ID,
		WorkspaceID:   integration.WorkspaceID,
		Provider:      integration.Provider,
		Trigger:       models.SyncTriggerCLI,
		StartedAt:     time.Now().UTC(),
	}
	require.NoError(t, runs.Create(ctx, run))
	run.Status = models.SyncRunStatusSuccess
	require.NoError(t, runs.Complete(ctx, run))

	history, err := runs.ListByIntegration(ctx, integration.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.SyncRunStatusSuccess, history[0].Status)

	err = database.WithTx(ctx, conn, func(ctx context.Context, _ database.Tx) error {
		deleted, err := records.DeletePendingUndated(ctx, models.TargetTasks, integration.ID)
		if err != nil {
			return err
		}
		if deleted != 2 {
			return fmt.Errorf("expected 2 pending records deleted, got %d", deleted)
		}
		return integrations.Delete(ctx, integration.ID)
	})
	require.NoError(t, err)

	_, err = integrations.GetByID(ctx, integration.ID)
	require.Error(t, err)
}

func TestPostgres_ListDue(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	conn := startPostgres(t)
	repo := repositories.NewIntegrationRepository(conn, getDevLogger())
	ctx := context.Background()

	recent := time.Now().UTC()
	stale := recent.Add(-2 * time.Hour)

	create := func(status models.IntegrationStatus, lastSync *time.Time) *models.Integration {
		integration := &models.Integration{
			Provider:    models.ProviderAsana,
			UserID:      uuid.New(),
			WorkspaceID: uuid.New(),
			AccessToken: "token",
			Status:      status,
			LastSync:    lastSync,
			Config:      database.NewJSONB(map[string]any{}),
			Profile:     database.NewJSONB(map[string]any{}),
		}
		require.NoError(t, repo.Create(ctx, integration))
		return integration
	}

	never := create(models.IntegrationStatusActive, nil)
	old := create(models.IntegrationStatusActive, &stale)
	create(models.IntegrationStatusActive, &recent)

	due, err := repo.ListDue(ctx, recent.Add(-15*time.Minute), recent.Add(-time.Hour), 10)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(due))
	for _, integration := range due {
		ids = append(ids, integration.ID)
	}
	assert.Equal(t, []uuid.UUID{never.ID, old.ID}, ids)
}
