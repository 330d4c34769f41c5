package calendly_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/providers/calendly"
	"github.com/Ramsey-B/fern/pkg/providers/providertest"
)

func TestAdapter_UsesProfileURIAndPageToken(t *testing.T) {
	server := providertest.Server(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scheduled_events", r.URL.Path)
		assert.Equal(t, "https://api.calendly.com/users/ME", r.URL.Query().Get("user"))
		assert.Equal(t, "2025-03-07T09:00:00Z", r.URL.Query().Get("min_start_time"))
		switch r.URL.Query().Get("page_token") {
		case "":
			_, _ = w.Write([]byte(`{"collection":[{"uri":"https://api.calendly.com/scheduled_events/E1","name":"30 min","start_time":"2025-03-15T10:00:00.000000Z"}],
				"pagination":{"next_page_token":"tok2"}}`))
		case "tok2":
			_, _ = w.Write([]byte(`{"collection":[{"uri":"https://api.calendly.com/scheduled_events/E2","name":"60 min"}],"pagination":{"next_page_token":null}}`))
		}
	})

	adapter := calendly.New(providertest.Deps(models.ProviderCalendly, server.URL))
	integration := providertest.Integration(models.ProviderCalendly, nil)
	integration.Profile = database.NewJSONB(map[string]any{"uri": "https://api.calendly.com/users/ME"})

	records, pages, err := providertest.Drain(context.Background(), adapter, integration)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	require.Len(t, records, 2)
	assert.Equal(t, "https://api.calendly.com/scheduled_events/E1", records[0].ID)
}

func TestAdapter_RequiresUser(t *testing.T) {
	adapter := calendly.New(providertest.Deps(models.ProviderCalendly, "http://unused"))

	_, _, err := providertest.Drain(context.Background(), adapter, providertest.Integration(models.ProviderCalendly, nil))
	assert.ErrorIs(t, err, providers.ErrMisconfigured)
}
