package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// AuthError means the provider rejected the access token.
type AuthError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s rejected credentials (status %d)", e.Provider, e.StatusCode)
}

// StatusError is any other non-2xx provider response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
}

// IsAuthError reports whether err, or anything it wraps, is an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// unauthorizedBody matches the provider-specific "token expired" payloads some APIs send with a 400 or 403.
var unauthorizedBody = regexp.MustCompile(`(?i)(invalid_token|token[_ ]expired|expired[_ ]token|unauthorized|OAUTH_0\d\d|InvalidAuthenticationToken)`)

// Classify maps a response to nil, *AuthError or *StatusError.
func Classify(provider string, resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body := string(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{Provider: provider, StatusCode: resp.StatusCode, Body: body}
	case (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest) && unauthorizedBody.MatchString(body):
		return &AuthError{Provider: provider, StatusCode: resp.StatusCode, Body: body}
	default:
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: body}
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
