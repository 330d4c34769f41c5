package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/redis"
)

func newMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewDatabaseInstance(sqlx.NewDb(db, "sqlmock"), testLogger()), mock
}

func newTestLocker(t *testing.T) *redis.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewLocker(redis.NewClientFromRedis(rdb, testLogger()), "")
}

func seededRecords(integration *models.Integration) *fakeRecords {
	due := testNow.Add(24 * time.Hour)
	base := models.LocalRecord{
		WorkspaceID:   integration.WorkspaceID,
		IntegrationID: integration.ID,
		Source:        integration.Provider,
		Host:          "app.asana.com",
		Status:        models.RecordStatusPending,
	}

	undated, dated, done := base, base, base
	undated.ExternalID = "undated"
	dated.ExternalID = "dated"
	dated.DueDate = &due
	done.ExternalID = "done"
	done.Status = models.RecordStatusCompleted

	records := newFakeRecords()
	records.seed(undated, dated, done)
	return records
}

func TestDisconnect_RemovesIntegrationAndPendingUndatedRecords(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	integration := freshIntegration()
	records := seededRecords(integration)
	integrations := newFakeIntegrations(integration)

	o := NewOrchestrator(integrations, records, &fakeRuns{}, adapterSource{}, db, newTestLocker(t), nil, nil, DefaultConfig(), testLogger())
	require.NoError(t, o.Disconnect(context.Background(), integration.ID))

	assert.Equal(t, []uuid.UUID{integration.ID}, integrations.deleted)
	assert.Nil(t, records.byExternalID("undated"))
	assert.NotNil(t, records.byExternalID("dated"))
	assert.NotNil(t, records.byExternalID("done"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisconnect_UnknownIntegrationRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	o := NewOrchestrator(newFakeIntegrations(), newFakeRecords(), &fakeRuns{}, adapterSource{}, db, nil, nil, nil, DefaultConfig(), testLogger())
	err := o.Disconnect(context.Background(), freshIntegration().ID)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisconnect_WaitsForNoRunningPass(t *testing.T) {
	db, mock := newMockDB(t)
	locker := newTestLocker(t)
	integration := freshIntegration()
	integrations := newFakeIntegrations(integration)

	ctx := context.Background()
	lock, err := locker.Acquire(ctx, redis.SyncLockKey(integration.ID.String()), time.Minute)
	require.NoError(t, err)
	defer lock.Release(ctx)

	o := NewOrchestrator(integrations, newFakeRecords(), &fakeRuns{}, adapterSource{}, db, locker, nil, nil, DefaultConfig(), testLogger())
	err = o.Disconnect(ctx, integration.ID)

	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Empty(t, integrations.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSync_SkipsWhenAnotherPassHoldsTheLock(t *testing.T) {
	locker := newTestLocker(t)
	adapter := newFakeAdapter(pagination.StrategySingle, true)
	adapter.list = singlePage(remote("a"))

	integration := freshIntegration()
	integrations := newFakeIntegrations(integration)
	runs := &fakeRuns{}

	ctx := context.Background()
	lock, err := locker.Acquire(ctx, redis.SyncLockKey(integration.ID.String()), time.Minute)
	require.NoError(t, err)

	o := NewOrchestrator(integrations, newFakeRecords(), runs, adapterSource{adapter: adapter}, nil, locker, nil, nil, DefaultConfig(), testLogger())
	o.SetClock(func() time.Time { return testNow })

	result := o.RunSync(ctx, integration, models.SyncTriggerSchedule)
	assert.ErrorIs(t, result.Error, ErrSyncInProgress)
	assert.False(t, result.Success)
	assert.Zero(t, adapter.listCalls)
	assert.Empty(t, integrations.statuses)
	assert.Empty(t, runs.created)

	require.NoError(t, lock.Release(ctx))
	result = o.RunSync(ctx, integration, models.SyncTriggerSchedule)
	require.NoError(t, result.Error)
	assert.Equal(t, 1, adapter.listCalls)
}
