package middleware

import (
	stdcontext "context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Error renders handler errors as ErrorResponse. httperror and echo errors keep their status,
// a request that ran out of time is a 504, and anything else is a 500 with a generic message.
// Client errors are left to the access log.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()

		code, message, meta := classify(err)
		if code >= http.StatusInternalServerError {
			logger.WithContext(ctx).WithError(err).Errorf("api is returning a %d", code)
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

func classify(err error) (int, string, map[string]any) {
	if httperror.IsHTTPError(err) {
		he := httperror.ToHTTPError(err)
		return httperror.GetStatusCode(err), he.Error(), he.Meta
	}

	var ee *echo.HTTPError
	if errors.As(err, &ee) {
		if msg, ok := ee.Message.(string); ok {
			return ee.Code, msg, nil
		}
		return ee.Code, http.StatusText(ee.Code), nil
	}

	if errors.Is(err, stdcontext.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "request timed out", nil
	}
	return http.StatusInternalServerError, "Internal Server Error", nil
}
