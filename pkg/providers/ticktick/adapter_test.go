package ticktick_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/providers/providertest"
	"github.com/Ramsey-B/fern/pkg/providers/ticktick"
)

func TestAdapter_ReadsInboxAndProjects(t *testing.T) {
	server := providertest.Server(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project":
			_, _ = w.Write([]byte(`[{"id":"p1","name":"Work"}]`))
		case "/project/inbox/data":
			_, _ = w.Write([]byte(`{"tasks":[{"id":"i1","projectId":"inbox","title":"Inbox task","status":0,"dueDate":"2025-03-18T16:00:00.000+0000"}]}`))
		case "/project/p1/data":
			_, _ = w.Write([]byte(`{"tasks":[{"id":"w1","projectId":"p1","title":"Work task","status":2,"completedTime":"2025-03-10T09:00:00.000+0000"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	adapter := ticktick.New(providertest.Deps(models.ProviderTickTick, server.URL))
	records, pages, err := providertest.Drain(context.Background(), adapter, providertest.Integration(models.ProviderTickTick, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, pages)
	require.Len(t, records, 2)
	assert.Equal(t, "https://ticktick.com/webapp/#p/inbox/tasks/i1", records[0].URL)
	require.NotNil(t, records[0].DueAt)
	assert.False(t, records[0].Completed)
	assert.True(t, records[1].Completed)
	require.NotNil(t, records[1].CompletedAt)
}

func TestAdapter_MalformedTaskDoesNotFailThePage(t *testing.T) {
	server := providertest.Server(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project":
			_, _ = w.Write([]byte(`[]`))
		case "/project/inbox/data":
			_, _ = w.Write([]byte(`{"tasks":[{"id":"bad","projectId":null,"title":"Broken","status":0},{"id":"i1","projectId":"inbox","title":"Inbox task","status":0}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	adapter := ticktick.New(providertest.Deps(models.ProviderTickTick, server.URL))
	records, _, err := providertest.Drain(context.Background(), adapter, providertest.Integration(models.ProviderTickTick, nil))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "bad", records[0].ID)
	assert.ErrorIs(t, records[0].Invalid, providers.ErrInvalidRecord)
	assert.NoError(t, records[1].Invalid)
	assert.Equal(t, "https://ticktick.com/webapp/#p/inbox/tasks/i1", records[1].URL)
}

func TestAdapter_UnauthorizedSurfacesAuthError(t *testing.T) {
	server := providertest.Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	adapter := ticktick.New(providertest.Deps(models.ProviderTickTick, server.URL))
	_, _, err := providertest.Drain(context.Background(), adapter, providertest.Integration(models.ProviderTickTick, nil))
	require.Error(t, err)
	assert.True(t, httpclient.IsAuthError(err))
}
