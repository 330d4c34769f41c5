package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ramsey-B/fern/pkg/context"
)

const (
	// HeaderWorkspaceID names the workspace every API call is scoped to
	HeaderWorkspaceID = "X-Workspace-ID"
	// HeaderUserID names the calling user
	HeaderUserID = "X-User-ID"
)

// Context copies request metadata onto the request context, tags the active span
// with the workspace, and echoes the request id back to the caller.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.SetRequestID(req.Context(), requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, c.Path())
			ctx = context.SetRemoteIP(ctx, c.RealIP())

			span := trace.SpanFromContext(ctx)
			span.SetAttributes(attribute.String("request.id", requestID))

			if workspaceID := req.Header.Get(HeaderWorkspaceID); workspaceID != "" {
				ctx = context.SetWorkspaceID(ctx, workspaceID)
				span.SetAttributes(attribute.String("workspace.id", workspaceID))
			}
			if userID := req.Header.Get(HeaderUserID); userID != "" {
				ctx = context.SetUserID(ctx, userID)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
