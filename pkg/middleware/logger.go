package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
)

// Logger writes one access log line per request and records the API metrics.
// Probe and scrape routes log at debug so they do not drown out sync traffic.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req, res := c.Request(), c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.APIRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(res.Status)).Inc()
			metrics.APIRequestDuration.WithLabelValues(req.Method, route).Observe(elapsed.Seconds())

			fields := map[string]any{
				"request_id":  fernctx.GetRequestID(req.Context()),
				"method":      req.Method,
				"route":       route,
				"uri":         req.RequestURI,
				"status":      res.Status,
				"duration_ms": elapsed.Milliseconds(),
				"bytes_out":   res.Size,
			}
			if workspaceID := fernctx.GetWorkspaceID(req.Context()); workspaceID != "" {
				fields["workspace_id"] = workspaceID
			}
			if id := c.Param("id"); id != "" {
				fields["integration_id"] = id
			}

			entry := logger.WithContext(req.Context()).WithFields(fields)
			switch {
			case isProbe(route):
				entry.Debug("Request")
			case res.Status >= 500:
				entry.Error("Request failed")
			case res.Status >= 400:
				entry.Warn("Request rejected")
			default:
				entry.Info("Request")
			}
			return nil
		}
	}
}

func isProbe(route string) bool {
	return route == "/metrics" || strings.HasPrefix(route, "/health")
}
