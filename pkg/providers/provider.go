// Package providers defines the adapter contract every third-party task or calendar service implements,
// plus the shared plumbing adapters embed.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

var (
	// ErrUnsupportedProvider is returned by the registry for providers without an adapter
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrInvalidRecord is returned by MapRecord when a remote record cannot be projected
	ErrInvalidRecord = errors.New("invalid remote record")

	// ErrMisconfigured is returned when an integration lacks a setting the adapter needs
	ErrMisconfigured = errors.New("integration misconfigured")
)

// Adapter is the capability set the orchestrator drives for one provider.
type Adapter interface {
	Provider() models.Provider

	// Target is the local table records land in.
	Target() models.RecordTarget

	// Pagination is the continuation primitive ListPage understands.
	Pagination() pagination.Strategy

	// Host is the canonical host stored with every record, part of the record's unique key.
	Host(integration *models.Integration) string

	// Reconciles reports whether ListPage returns only active records, so anything it stops
	// returning may be completed locally.
	Reconciles() bool

	// Endpoint is the token endpoint entry from the catalog.
	Endpoint() oauth.Endpoint

	// RefreshToken exchanges a refresh credential for a new token set.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth.Token, error)

	// ListPage fetches the page at cursor using the integration's current access token.
	ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error)

	// MapRecord projects a remote record into the local shape.
	MapRecord(integration *models.Integration, remote models.RemoteRecord, normalize richtext.Normalizer) (*models.LocalRecord, error)
}

// Misconfigured reports a missing integration setting.
func Misconfigured(provider models.Provider, setting string) error {
	return fmt.Errorf("%w: %s requires %q", ErrMisconfigured, provider, setting)
}
