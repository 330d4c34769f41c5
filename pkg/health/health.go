// Package health serves liveness and readiness probes for the fern service.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// DefaultCheckTimeout bounds a single dependency check
const DefaultCheckTimeout = 5 * time.Second

// CheckFunc reports whether a dependency is reachable
type CheckFunc func(ctx context.Context) error

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response is the body of every probe
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

type phase int32

const (
	phaseStarting phase = iota
	phaseServing
	phaseDraining
)

type dependency struct {
	name     string
	check    CheckFunc
	critical bool
}

// Checker tracks the service lifecycle and the dependencies readiness depends on.
// A failing critical dependency makes the service unhealthy, any other only degrades it.
type Checker struct {
	started time.Time
	version string
	timeout time.Duration
	phase   atomic.Int32

	mu   sync.RWMutex
	deps []dependency
}

func NewChecker(version string) *Checker {
	return &Checker{
		started: time.Now(),
		version: version,
		timeout: DefaultCheckTimeout,
	}
}

// AddCheck registers a dependency check
func (c *Checker) AddCheck(name string, check CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps = append(c.deps, dependency{name: name, check: check, critical: critical})
}

// SetReady opens or closes the readiness probe. Closing it after it was open means the
// service is draining for shutdown.
func (c *Checker) SetReady(ready bool) {
	if ready {
		c.phase.Store(int32(phaseServing))
		return
	}
	c.phase.CompareAndSwap(int32(phaseServing), int32(phaseDraining))
}

// IsReady reports whether the service takes traffic
func (c *Checker) IsReady() bool {
	return phase(c.phase.Load()) == phaseServing
}

func (c *Checker) respond(ctx echo.Context, code int, status Status, checks map[string]CheckResult) error {
	return ctx.JSON(code, Response{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now().UTC(),
	})
}

// LivenessHandler only reports that the process answers
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return c.respond(ctx, http.StatusOK, StatusHealthy, nil)
}

// ReadinessHandler fails while starting up or draining, then defers to the dependency checks
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	switch phase(c.phase.Load()) {
	case phaseStarting:
		return c.respond(ctx, http.StatusServiceUnavailable, StatusUnhealthy, map[string]CheckResult{
			"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
		})
	case phaseDraining:
		return c.respond(ctx, http.StatusServiceUnavailable, StatusUnhealthy, map[string]CheckResult{
			"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler runs every check and reports the combined status
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.RunChecks(ctx.Request().Context())
	status := Combine(checks)

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.respond(ctx, code, status, checks)
}

// RunChecks runs all registered checks concurrently, each under the check timeout
func (c *Checker) RunChecks(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	deps := append([]dependency(nil), c.deps...)
	c.mu.RUnlock()

	results := make([]CheckResult, len(deps))
	var wg sync.WaitGroup
	for i, dep := range deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, dep)
		}()
	}
	wg.Wait()

	byName := make(map[string]CheckResult, len(deps))
	for i, dep := range deps {
		byName[dep.name] = results[i]
	}
	return byName
}

func (c *Checker) run(ctx context.Context, dep dependency) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := dep.check(ctx)
	result := CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		result.Message = err.Error()
		result.Status = StatusDegraded
		if dep.critical {
			result.Status = StatusUnhealthy
		}
	}
	return result
}

// Combine folds check results into one status: any unhealthy wins, then any degraded.
func Combine(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// RegisterRoutes mounts the probes under /health
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/health")
	g.GET("", c.HealthHandler)
	g.GET("/live", c.LivenessHandler)
	g.GET("/ready", c.ReadinessHandler)
}
