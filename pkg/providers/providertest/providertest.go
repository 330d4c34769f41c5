// Package providertest builds adapters pointed at an httptest server.
package providertest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
)

// Now is the fixed clock Deps installs.
var Now = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// Server starts an httptest server that is closed with the test.
func Server(t testing.TB, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// Deps returns adapter dependencies that send provider's requests to baseURL.
func Deps(provider models.Provider, baseURL string) providers.Deps {
	logger := Logger()
	return providers.Deps{
		Client:    httpclient.NewClient(httpclient.DefaultConfig(), logger),
		Refresher: oauth.NewRefresher(http.DefaultClient, logger),
		Catalog:   oauth.Catalog{},
		Credentials: map[models.Provider]oauth.ClientCredentials{
			provider: {ClientID: "client-id", ClientSecret: "client-secret"},
		},
		Evaluator: expressions.NewEvaluator(),
		Logger:    logger,
		BaseURLs:  map[models.Provider]string{provider: baseURL},
		Now:       func() time.Time { return Now },
	}
}

// Integration returns an active integration with the given config.
func Integration(provider models.Provider, config map[string]any) *models.Integration {
	if config == nil {
		config = map[string]any{}
	}
	return &models.Integration{
		ID:          uuid.New(),
		Provider:    provider,
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		AccessToken: "access-token",
		Status:      models.IntegrationStatusActive,
		Config:      database.NewJSONB(config),
		Profile:     database.NewJSONB(map[string]any{}),
	}
}

// Drain pages through adapter the way a sync pass does and returns every record.
func Drain(ctx context.Context, adapter providers.Adapter, integration *models.Integration) ([]models.RemoteRecord, int, error) {
	p := pagination.New(adapter.Pagination(), func(ctx context.Context, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
		return adapter.ListPage(ctx, integration, cursor)
	}, pagination.WithMaxPages(20))

	var records []models.RemoteRecord
	for p.HasMorePages() {
		items, err := p.NextPage(ctx)
		if err != nil {
			return records, p.PagesFetched(), err
		}
		records = append(records, items...)
	}
	return records, p.PagesFetched(), nil
}
