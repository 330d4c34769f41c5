package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another holder owns the key
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the lock expired or was taken over since it was acquired
	ErrLockNotHeld = errors.New("lock not held")
)

const releaseTimeout = 5 * time.Second

// ownerScript runs ARGV[2] against KEYS[1] only while the key still holds the owner token ARGV[1].
// ARGV[2] is "del" or "pexpire" with the ttl in ARGV[3].
var ownerScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] == "del" then
	return redis.call("del", KEYS[1])
end
return redis.call("pexpire", KEYS[1], ARGV[3])
`)

// ownerPrefix identifies this process in lock values so a stuck lock can be traced to its worker.
var ownerPrefix = func() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d/", host, os.Getpid())
}()

// Lock is a held lock. Its value is an owner token unique to this acquisition.
type Lock struct {
	client *Client
	key    string
	owner  string
	ttl    time.Duration
}

// Locker hands out SET NX locks under a key prefix
type Locker struct {
	client    *Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	return &Locker{client: client, keyPrefix: keyPrefix}
}

// Acquire takes key for ttl or returns ErrLockNotAcquired. It never waits.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		client: l.client,
		key:    l.keyPrefix + key,
		owner:  ownerPrefix + uuid.NewString(),
		ttl:    ttl,
	}

	ok, err := l.client.rdb.SetNX(ctx, lock.key, lock.owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock %s", lock.key)
	return lock, nil
}

// Holder returns the owner token currently holding key, or "" when it is free.
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	owner, err := l.client.rdb.Get(ctx, l.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}

// IsLocked reports whether anyone holds key
func (l *Locker) IsLocked(ctx context.Context, key string) (bool, error) {
	owner, err := l.Holder(ctx, key)
	return owner != "", err
}

func (lock *Lock) runOwned(ctx context.Context, op string, ttl time.Duration) error {
	n, err := ownerScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.owner, op, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Release frees the lock unless someone else has taken it over
func (lock *Lock) Release(ctx context.Context) error {
	if err := lock.runOwned(ctx, "del", 0); err != nil {
		return err
	}
	lock.client.logger.WithContext(ctx).Debugf("Released lock %s", lock.key)
	return nil
}

// Extend resets the ttl while the lock is still ours
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if err := lock.runOwned(ctx, "pexpire", ttl); err != nil {
		return err
	}
	lock.ttl = ttl
	return nil
}

// keepAlive extends the lock every ttl/3 until ctx is done or the lock is lost.
func (lock *Lock) keepAlive(ctx context.Context) {
	interval := lock.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := lock.Extend(ctx, lock.ttl); err != nil {
			if ctx.Err() == nil {
				lock.client.logger.WithContext(ctx).WithError(err).Warnf("Lost lock %s", lock.key)
			}
			return
		}
	}
}

// WithLock runs fn while holding key. The lock is extended in the background while fn runs,
// so ttl only needs to cover a crashed holder, not the longest run.
// Returns ErrLockNotAcquired without calling fn when another holder has the key.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}

	keepAliveCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lock.keepAlive(keepAliveCtx)
	}()

	defer func() {
		stop()
		<-done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", lock.key)
		}
	}()

	return fn(ctx)
}

// SyncLockKey is the lock key guarding sync and disconnect for one integration
func SyncLockKey(integrationID string) string {
	return "sync:" + integrationID
}
