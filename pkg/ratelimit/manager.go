// Package ratelimit keeps provider API calls under each provider's request budget.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultMaxWait bounds how long one request waits for budget
	DefaultMaxWait = 2 * time.Minute

	// DefaultBackoff is used for a 429 without a usable Retry-After header
	DefaultBackoff = 30 * time.Second

	minWait = 50 * time.Millisecond
)

// Limit is a request budget per window
type Limit struct {
	Requests int64
	Window   time.Duration
}

// LimitsFromCatalog collects the rate limits declared in the endpoints catalog.
func LimitsFromCatalog(catalog oauth.Catalog) map[string]Limit {
	limits := make(map[string]Limit)
	for name, endpoint := range catalog {
		if endpoint.RateLimit != nil {
			limits[name] = Limit{Requests: endpoint.RateLimit.Requests, Window: endpoint.RateLimit.Window}
		}
	}
	return limits
}

// Manager throttles requests per provider connection. Budgets are tracked in redis so
// every worker shares them.
type Manager struct {
	limiter *redis.RateLimiter
	limits  map[string]Limit
	maxWait time.Duration
	logger  ectologger.Logger
}

// NewManager creates a new rate limit manager
func NewManager(client *redis.Client, limits map[string]Limit, logger ectologger.Logger) *Manager {
	return &Manager{
		limiter: redis.NewRateLimiter(client, "fern:ratelimit:"),
		limits:  limits,
		maxWait: DefaultMaxWait,
		logger:  logger,
	}
}

// SetMaxWait changes how long Wait may block before giving up.
func (m *Manager) SetMaxWait(d time.Duration) {
	m.maxWait = d
}

// key scopes the budget to the integration on ctx, or to the whole provider without one.
func key(ctx context.Context, provider string) string {
	if id := fernctx.GetIntegrationID(ctx); id != "" {
		return provider + ":" + id
	}
	return provider
}

// Wait blocks until provider has budget for one more request. Redis failures let the request through.
func (m *Manager) Wait(ctx context.Context, provider string) error {
	ctx, span := tracing.StartSpan(ctx, "RateLimitManager.Wait")
	defer span.End()

	k := key(ctx, provider)
	limit, limited := m.limits[provider]
	start := time.Now()
	deadline := start.Add(m.maxWait)

	for {
		retryIn, err := m.check(ctx, k, limit, limited)
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).Warnf("Rate limit check failed for %s, continuing unthrottled", k)
			return nil
		}
		if retryIn == 0 {
			if waited := time.Since(start); waited >= minWait {
				metrics.ProviderThrottleWaitSeconds.WithLabelValues(provider).Observe(waited.Seconds())
			}
			return nil
		}
		if retryIn < minWait {
			retryIn = minWait
		}
		if time.Now().Add(retryIn).After(deadline) {
			return fmt.Errorf("%s rate limit would exceed max wait of %s", provider, m.maxWait)
		}

		m.logger.WithContext(ctx).Infof("Rate limited by %s, waiting %s", k, retryIn)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryIn):
		}
	}
}

// check returns zero when the request may go now, otherwise how long to wait.
func (m *Manager) check(ctx context.Context, k string, limit Limit, limited bool) (time.Duration, error) {
	if !limited {
		blocked, ttl, err := m.limiter.IsBlocked(ctx, k)
		if err != nil || !blocked {
			return 0, err
		}
		return ttl, nil
	}

	result, err := m.limiter.Allow(ctx, k, limit.Requests, limit.Window)
	if err != nil {
		return 0, err
	}
	if result.Allowed {
		return 0, nil
	}
	return result.RetryIn, nil
}

// Backoff pauses provider after it answered 429. retryAfter is the raw Retry-After header.
func (m *Manager) Backoff(ctx context.Context, provider, retryAfter string) {
	d, err := ParseRetryAfter(retryAfter, time.Now())
	if err != nil || d <= 0 {
		d = DefaultBackoff
	}

	k := key(ctx, provider)
	if err := m.limiter.BlockFor(ctx, k, d); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warnf("Failed to record backoff for %s", k)
		return
	}
	m.logger.WithContext(ctx).Warnf("%s answered 429, pausing %s for %s", provider, k, d)
}

// ParseRetryAfter parses a Retry-After header in seconds or HTTP date form.
func ParseRetryAfter(value string, now time.Time) (time.Duration, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	if t, err := http.ParseTime(value); err == nil {
		return t.Sub(now), nil
	}
	return 0, fmt.Errorf("invalid Retry-After value: %q", value)
}
