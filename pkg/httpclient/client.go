package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/metrics"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// Throttle keeps requests inside a provider's rate limit.
type Throttle interface {
	Wait(ctx context.Context, provider string) error
	Backoff(ctx context.Context, provider, retryAfter string)
}

// Client wraps net/http with logging, size limits and provider status classification.
type Client struct {
	client   *http.Client
	throttle Throttle
	logger   ectologger.Logger
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// NewClient creates a new HTTP client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
}

// NewClientWith wraps an existing *http.Client, e.g. an httptest server client.
func NewClientWith(client *http.Client, logger ectologger.Logger) *Client {
	return &Client{client: client, logger: logger}
}

// SetThrottle makes every request wait for provider budget first.
func (c *Client) SetThrottle(t Throttle) {
	c.throttle = t
}

// HTTPClient exposes the underlying client for libraries that take one (oauth2).
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Request describes one provider API call.
type Request struct {
	// Provider labels logs and metrics.
	Provider string
	Method   string
	URL      string
	Query    url.Values
	Headers  map[string]string
	// BearerToken is sent as "Authorization: Bearer <token>" when set.
	BearerToken string
}

// Do executes an HTTP request and returns the response regardless of status code.
func (c *Client) Do(ctx context.Context, provider string, req *http.Request) (*Response, error) {
	if c.throttle != nil && provider != "" {
		if err := c.throttle.Wait(ctx, provider); err != nil {
			return nil, fmt.Errorf("request throttled: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(provider, "error").Inc()
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: %s %s", req.Method, redact(req.URL))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	metrics.ProviderRequestsTotal.WithLabelValues(provider, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())

	if resp.StatusCode == http.StatusTooManyRequests && c.throttle != nil {
		c.throttle.Backoff(ctx, provider, resp.Header.Get("Retry-After"))
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)", req.Method, redact(req.URL), resp.StatusCode, duration)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}

// Send builds and executes r. Non-2xx responses come back as *AuthError or *StatusError.
func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", r.URL, err)
	}
	if len(r.Query) > 0 {
		q := target.Query()
		for key, values := range r.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if r.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.BearerToken)
	}

	resp, err := c.Do(ctx, r.Provider, req)
	if err != nil {
		return nil, err
	}

	if err := Classify(r.Provider, resp); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"provider":    r.Provider,
			"status_code": resp.StatusCode,
		}).Warnf("Provider request failed: %s %s", method, redact(target))
		return resp, err
	}

	return resp, nil
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, provider, url, bearerToken string, query url.Values) (*Response, error) {
	return c.Send(ctx, Request{Provider: provider, URL: url, Query: query, BearerToken: bearerToken})
}

// redact drops the query string, which may carry api keys (Trello).
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}
