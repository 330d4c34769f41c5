package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewClientFromRedis(rdb, logger), mr
}

func TestLocker_AcquireRelease(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "sync:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("fern:lock:sync:abc"))

	_, err = locker.Acquire(ctx, "sync:abc", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("fern:lock:sync:abc"))

	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestLocker_ReleaseDoesNotStealAnotherHolder(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// simulate expiry and takeover
	mr.Del("fern:lock:k")
	other, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
	assert.True(t, mr.Exists("fern:lock:k"))
	require.NoError(t, other.Release(ctx))
}

func TestLocker_Extend(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Extend(ctx, time.Hour))
	assert.Greater(t, mr.TTL("fern:lock:k"), time.Minute)
}

func TestLocker_WithLock(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	called := false
	err := locker.WithLock(ctx, SyncLockKey("int-1"), time.Minute, func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists("fern:lock:sync:int-1"))

		locked, err := locker.IsLocked(ctx, SyncLockKey("int-1"))
		require.NoError(t, err)
		assert.True(t, locked)

		nested := locker.WithLock(ctx, SyncLockKey("int-1"), time.Minute, func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		assert.ErrorIs(t, nested, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists("fern:lock:sync:int-1"))
}

func TestLocker_WithLockReturnsFnError(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "")
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", time.Minute, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("fern:lock:k"))
}

func TestLocker_Holder(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	owner, err := locker.Holder(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, owner)

	lock, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	owner, err = locker.Holder(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, lock.owner, owner)
	assert.True(t, strings.HasPrefix(owner, ownerPrefix))
}

func TestStreams_PublishConsumeAck(t *testing.T) {
	client, _ := newTestClient(t)
	streams := NewStreams(client)
	ctx := context.Background()

	require.NoError(t, streams.CreateConsumerGroup(ctx, "jobs", "workers"))
	require.NoError(t, streams.CreateConsumerGroup(ctx, "jobs", "workers"))

	job := &JobMessage{WorkspaceID: "ws-1", IntegrationID: "int-1", Provider: "todoist", Trigger: "schedule"}
	_, err := streams.Publish(ctx, "jobs", job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())

	msgs, err := streams.Consume(ctx, "jobs", "workers", "c1", 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "int-1", msgs[0].Job.IntegrationID)
	assert.Equal(t, "todoist", msgs[0].Job.Provider)
	assert.Equal(t, job.ID, msgs[0].Job.ID)

	pending, err := streams.Pending(ctx, "jobs", "workers", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c1", pending[0].Consumer)

	require.NoError(t, streams.Ack(ctx, "jobs", "workers", msgs[0].ID))
	pending, err = streams.Pending(ctx, "jobs", "workers", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := streams.Len(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStreams_Claim(t *testing.T) {
	client, _ := newTestClient(t)
	streams := NewStreams(client)
	ctx := context.Background()

	require.NoError(t, streams.CreateConsumerGroup(ctx, "jobs", "workers"))
	_, err := streams.Publish(ctx, "jobs", &JobMessage{IntegrationID: "int-2"})
	require.NoError(t, err)

	msgs, err := streams.Consume(ctx, "jobs", "workers", "dead-consumer", 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	claimed, err := streams.Claim(ctx, "jobs", "workers", "c2", 0, msgs[0].ID)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "int-2", claimed[0].Job.IntegrationID)

	pending, err := streams.Pending(ctx, "jobs", "workers", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c2", pending[0].Consumer)
}

func TestStreams_UndecodablePayloadIsDelivered(t *testing.T) {
	client, _ := newTestClient(t)
	streams := NewStreams(client)
	ctx := context.Background()

	require.NoError(t, streams.CreateConsumerGroup(ctx, "jobs", "workers"))
	id, err := client.Redis().XAdd(ctx, &redis.XAddArgs{Stream: "jobs", Values: map[string]any{"data": "{not json"}}).Result()
	require.NoError(t, err)

	msgs, err := streams.Consume(ctx, "jobs", "workers", "c1", 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Nil(t, msgs[0].Job)
}

func TestStreams_Get(t *testing.T) {
	client, _ := newTestClient(t)
	streams := NewStreams(client)
	ctx := context.Background()

	id, err := streams.Publish(ctx, "jobs", &JobMessage{IntegrationID: "int-5", Trigger: "manual"})
	require.NoError(t, err)

	msg, err := streams.Get(ctx, "jobs", id)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "int-5", msg.Job.IntegrationID)

	missing, err := streams.Get(ctx, "jobs", "0-1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeadLetterQueue_AddList(t *testing.T) {
	client, _ := newTestClient(t)
	dlq := NewDeadLetterQueue(client, "")
	ctx := context.Background()

	_, err := dlq.Add(ctx, &DLQEntry{
		IntegrationID: "int-3",
		OriginalJob:   &JobMessage{ID: "job-1", IntegrationID: "int-3"},
		ErrorMessage:  "refresh failed",
		Attempts:      3,
	})
	require.NoError(t, err)

	entries, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "int-3", entries[0].IntegrationID)
	assert.Equal(t, "job-1", entries[0].OriginalJob.ID)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.NotEmpty(t, entries[0].ID)
}

func TestDeadLetterQueue_Replay(t *testing.T) {
	client, _ := newTestClient(t)
	dlq := NewDeadLetterQueue(client, "")
	streams := NewStreams(client)
	ctx := context.Background()

	id, err := dlq.Add(ctx, &DLQEntry{
		IntegrationID: "int-4",
		OriginalJob:   &JobMessage{ID: "job-2", IntegrationID: "int-4", Trigger: "schedule", Attempts: 4},
		ErrorMessage:  "exceeded maximum retry count",
		Attempts:      4,
	})
	require.NoError(t, err)

	messageID, err := dlq.Replay(ctx, id, streams, "jobs")
	require.NoError(t, err)

	msg, err := streams.Get(ctx, "jobs", messageID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "job-2", msg.Job.ID)
	assert.Zero(t, msg.Job.Attempts)

	entries, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = dlq.Replay(ctx, id, streams, "jobs")
	assert.ErrorIs(t, err, ErrDLQEntryNotFound)
	assert.ErrorIs(t, dlq.Delete(ctx, id), ErrDLQEntryNotFound)
}

func TestRateLimiter_Allow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, "")
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		res, err := limiter.Allow(ctx, "asana:int-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := limiter.Allow(ctx, "asana:int-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryIn, 50*time.Second)

	res, err = limiter.Allow(ctx, "asana:int-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_BlockFor(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, "")
	ctx := context.Background()

	blocked, _, err := limiter.IsBlocked(ctx, "github:int-1")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, limiter.BlockFor(ctx, "github:int-1", 30*time.Second))

	blocked, ttl, err := limiter.IsBlocked(ctx, "github:int-1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, 30*time.Second, ttl)

	res, err := limiter.Allow(ctx, "github:int-1", 100, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.RetryIn)
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "redis.internal:6380", Config{Host: "redis.internal", Port: 6380}.Addr())
	assert.Equal(t, "[::1]:6379", Config{Host: "::1", Port: 6379}.Addr())
}
