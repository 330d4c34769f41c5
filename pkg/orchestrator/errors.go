package orchestrator

import (
	"context"
	"errors"

	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
)

var (
	// ErrMissingRefreshCredential is returned when the access token is expired and nothing can renew it
	ErrMissingRefreshCredential = errors.New("access token expired and no refresh token is stored")

	// ErrRefreshFailed is returned when the provider token endpoint rejects a refresh
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrAuthenticationFailed is returned when the provider still rejects credentials after a refresh
	ErrAuthenticationFailed = errors.New("provider rejected credentials")

	// ErrRemoteRecord marks a single remote record that could not be mapped
	ErrRemoteRecord = errors.New("remote record could not be mapped")

	// ErrPersistence marks a failed write to the local store
	ErrPersistence = errors.New("failed to persist")

	// ErrPaginationLimitExceeded is returned when a provider keeps reporting more pages past the ceiling
	ErrPaginationLimitExceeded = pagination.ErrPaginationLimitExceeded

	// ErrRemoteFetch is returned when a list page cannot be fetched for a reason other than auth
	ErrRemoteFetch = errors.New("failed to fetch remote records")

	// ErrSyncInProgress is returned when another pass holds the integration lock
	ErrSyncInProgress = errors.New("sync already in progress for integration")

	// ErrLockUnavailable is returned when the integration lock could not be checked at all
	ErrLockUnavailable = errors.New("sync lock unavailable")

	// ErrInvalidIntegration is returned when an integration is missing identifying fields
	ErrInvalidIntegration = errors.New("invalid integration")
)

// ErrorKind classifies err into the short label stored on sync runs and events.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSyncInProgress):
		return "sync_in_progress"
	case errors.Is(err, ErrLockUnavailable):
		return "lock_unavailable"
	case errors.Is(err, ErrMissingRefreshCredential):
		return "missing_refresh_credential"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrPaginationLimitExceeded):
		return "pagination_limit_exceeded"
	case errors.Is(err, providers.ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, providers.ErrMisconfigured), errors.Is(err, ErrInvalidIntegration):
		return "misconfigured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrRemoteFetch):
		return "remote_fetch"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
