package builtin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/providers/builtin"
	"github.com/Ramsey-B/fern/pkg/providers/providertest"
)

func TestRegistry_CoversEveryProvider(t *testing.T) {
	catalog, err := oauth.LoadCatalog("")
	require.NoError(t, err)

	deps := providertest.Deps(models.ProviderAsana, "")
	deps.Catalog = catalog
	registry := builtin.Registry(deps)

	assert.Len(t, registry.Providers(), 14)
	for _, p := range registry.Providers() {
		adapter, err := registry.Get(p)
		require.NoError(t, err)
		assert.Equal(t, string(p), adapter.Endpoint().Provider, "catalog entry for %s", p)
		assert.NotEmpty(t, adapter.Host(providertest.Integration(p, map[string]any{"site_url": "https://x.atlassian.net"})))
	}
}
