package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/redis"
)

func newTestManager(t *testing.T, limits map[string]Limit) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewManager(redis.NewClientFromRedis(rdb, logger), limits, logger), mr
}

func TestManager_WaitAllowsWithinBudget(t *testing.T) {
	m, _ := newTestManager(t, map[string]Limit{"asana": {Requests: 3, Window: time.Minute}})
	ctx := fernctx.SetIntegration(context.Background(), "int-1", "asana")

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Wait(ctx, "asana"))
	}
}

func TestManager_WaitGivesUpPastMaxWait(t *testing.T) {
	m, _ := newTestManager(t, map[string]Limit{"asana": {Requests: 1, Window: time.Hour}})
	m.SetMaxWait(time.Second)
	ctx := fernctx.SetIntegration(context.Background(), "int-1", "asana")

	require.NoError(t, m.Wait(ctx, "asana"))

	err := m.Wait(ctx, "asana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceed max wait")

	other := fernctx.SetIntegration(context.Background(), "int-2", "asana")
	assert.NoError(t, m.Wait(other, "asana"))
}

func TestManager_WaitsOutTheWindow(t *testing.T) {
	m, _ := newTestManager(t, map[string]Limit{"calcom": {Requests: 2, Window: 100 * time.Millisecond}})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Wait(ctx, "calcom"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestManager_BackoffBlocksUnlimitedProvider(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := fernctx.SetIntegration(context.Background(), "int-1", "jira")

	require.NoError(t, m.Wait(ctx, "jira"))

	m.Backoff(ctx, "jira", "3600")

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	m.SetMaxWait(2 * time.Hour)
	assert.ErrorIs(t, m.Wait(waitCtx, "jira"), context.DeadlineExceeded)
}

func TestManager_RedisFailureFailsOpen(t *testing.T) {
	m, mr := newTestManager(t, map[string]Limit{"asana": {Requests: 1, Window: time.Hour}})
	mr.Close()

	assert.NoError(t, m.Wait(context.Background(), "asana"))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	d, err := ParseRetryAfter("30", now)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = ParseRetryAfter("Fri, 14 Mar 2025 12:01:00 GMT", now)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = ParseRetryAfter("soon", now)
	assert.Error(t, err)
}

func TestLimitsFromCatalog(t *testing.T) {
	catalog, err := oauth.LoadCatalog("")
	require.NoError(t, err)

	limits := LimitsFromCatalog(catalog)

	assert.Equal(t, Limit{Requests: 150, Window: time.Minute}, limits["asana"])
	assert.NotContains(t, limits, "jira")
}
