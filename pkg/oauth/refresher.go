package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"golang.org/x/oauth2"
)

var (
	// ErrRefreshFailed is returned when the provider rejects the refresh_token grant
	ErrRefreshFailed = errors.New("refresh token exchange failed")

	// ErrNotRefreshable is returned for providers whose tokens cannot be refreshed
	ErrNotRefreshable = errors.New("provider does not support token refresh")

	// ErrMissingClientCredentials is returned when the client id or secret is not configured
	ErrMissingClientCredentials = errors.New("missing oauth client credentials")
)

// ClientCredentials is the app registration for one provider.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// Token is the result of a refresh. ExpiresAt already has the safety margin applied
// and is nil when the provider did not report a lifetime.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Refresher exchanges refresh tokens at provider token endpoints.
type Refresher struct {
	httpClient *http.Client
	logger     ectologger.Logger
	now        func() time.Time
}

func NewRefresher(httpClient *http.Client, logger ectologger.Logger) *Refresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Refresher{
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Refresh runs the refresh_token grant. The returned refresh token falls back to the one sent
// when the provider does not rotate it.
func (r *Refresher) Refresh(ctx context.Context, endpoint Endpoint, creds ClientCredentials, refreshToken string) (*Token, error) {
	ctx, span := tracing.StartSpan(ctx, "Refresher.Refresh")
	defer span.End()

	if !endpoint.Refreshable() {
		return nil, fmt.Errorf("%w: %s", ErrNotRefreshable, endpoint.Provider)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingClientCredentials, endpoint.Provider)
	}

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       endpoint.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  endpoint.TokenURL,
			AuthStyle: authStyle(endpoint.AuthStyle),
		},
	}

	issuedAt := r.now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		fields := map[string]any{"provider": endpoint.Provider}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			fields["error_code"] = retrieveErr.ErrorCode
			if retrieveErr.Response != nil {
				fields["status_code"] = retrieveErr.Response.StatusCode
			}
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Warn("Refresh token exchange failed")
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	result := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    ExpiryWithMargin(issuedAt, tok, endpoint.SafetyMargin),
	}
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"provider":          endpoint.Provider,
		"rotated":           result.RefreshToken != refreshToken,
		"has_expiry":        result.ExpiresAt != nil,
		"safety_margin_sec": int(endpoint.SafetyMargin.Seconds()),
	}).Info("Refreshed access token")

	return result, nil
}

// ExpiryWithMargin computes when fern should treat tok as expired: the provider lifetime minus margin,
// never earlier than issuedAt.
func ExpiryWithMargin(issuedAt time.Time, tok *oauth2.Token, margin time.Duration) *time.Time {
	var expiry time.Time
	switch {
	case tok.ExpiresIn > 0:
		expiry = issuedAt.Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		expiry = tok.Expiry
	default:
		return nil
	}

	expiry = expiry.Add(-margin)
	if expiry.Before(issuedAt) {
		expiry = issuedAt
	}
	expiry = expiry.UTC()
	return &expiry
}

func authStyle(style AuthStyle) oauth2.AuthStyle {
	if style == AuthStyleHeader {
		return oauth2.AuthStyleInHeader
	}
	return oauth2.AuthStyleInParams
}
