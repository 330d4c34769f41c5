package middleware

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const verifyTimeout = 5 * time.Second

// UserClaims are the token claims the API reads. A token either pins one workspace or
// lists the workspaces its subject may pick from with the X-Workspace-ID header.
type UserClaims struct {
	Sub         string   `json:"sub"`
	Email       string   `json:"email"`
	WorkspaceID string   `json:"workspace_id"`
	Workspaces  []string `json:"workspaces"`
}

// workspace resolves the workspace a request acts in. requested is the header value.
func (u UserClaims) workspace(requested string) (string, bool) {
	if u.WorkspaceID != "" {
		return u.WorkspaceID, requested == "" || requested == u.WorkspaceID
	}
	if requested == "" {
		return "", true
	}
	return requested, slices.Contains(u.Workspaces, requested)
}

// NewVerifier discovers issuer and returns a verifier for tokens issued to clientID.
func NewVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider %s: %w", issuer, err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Authentication requires a valid bearer token and puts its subject and workspace on the context.
// Asking for a workspace the token does not grant is a 403.
func Authentication(logger ectologger.Logger, verifier *oidc.IDTokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Authentication")
			defer span.End()

			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return httperror.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
			defer cancel()

			idToken, err := verifier.Verify(verifyCtx, raw)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return httperror.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			var claims UserClaims
			if err := idToken.Claims(&claims); err != nil {
				logger.WithContext(ctx).WithError(err).Warn("failed to parse claims")
				return httperror.NewHTTPError(http.StatusUnauthorized, "cannot parse claims")
			}

			workspaceID, allowed := claims.workspace(fernctx.GetWorkspaceID(ctx))
			if !allowed {
				logger.WithContext(ctx).Warnf("user %s asked for a workspace the token does not grant", claims.Sub)
				return httperror.NewHTTPError(http.StatusForbidden, "workspace not granted by token")
			}

			ctx = fernctx.SetUserID(ctx, claims.Sub)
			if workspaceID != "" {
				ctx = fernctx.SetWorkspaceID(ctx, workspaceID)
			}

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
