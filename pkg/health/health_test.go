package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestLiveness(t *testing.T) {
	c := NewChecker("1.2.3")
	c.AddCheck("database", failing, true)

	code, resp := serve(t, c, "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestReadiness_NotReadyDuringStartup(t *testing.T) {
	c := NewChecker("dev")
	c.AddCheck("database", ok, true)

	code, resp := serve(t, c, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "startup")
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		database   CheckFunc
		kafka      CheckFunc
		wantCode   int
		wantStatus Status
	}{
		{"all healthy", ok, ok, http.StatusOK, StatusHealthy},
		{"optional dependency down", ok, failing, http.StatusOK, StatusDegraded},
		{"critical dependency down", failing, ok, http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("dev")
			c.AddCheck("database", tt.database, true)
			c.AddCheck("kafka", tt.kafka, false)
			c.SetReady(true)

			code, resp := serve(t, c, "/health/ready")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, 2)
		})
	}
}

func TestRunChecks_ReportsFailureMessage(t *testing.T) {
	c := NewChecker("dev")
	c.AddCheck("redis", failing, true)

	results := c.RunChecks(context.Background())
	require.Contains(t, results, "redis")
	assert.Equal(t, StatusUnhealthy, results["redis"].Status)
	assert.Equal(t, "connection refused", results["redis"].Message)
}

func TestReadiness_Draining(t *testing.T) {
	c := NewChecker("dev")
	c.SetReady(false)
	assert.False(t, c.IsReady())

	c.SetReady(true)
	assert.True(t, c.IsReady())

	c.SetReady(false)
	code, resp := serve(t, c, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks, "shutdown")
}

func TestCombine(t *testing.T) {
	assert.Equal(t, StatusHealthy, Combine(nil))
	assert.Equal(t, StatusDegraded, Combine(map[string]CheckResult{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusDegraded},
	}))
	assert.Equal(t, StatusUnhealthy, Combine(map[string]CheckResult{
		"a": {Status: StatusDegraded},
		"b": {Status: StatusUnhealthy},
	}))
}
