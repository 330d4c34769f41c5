// Package trello syncs the open cards of the connected member.
package trello

import (
	"context"
	"net/url"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

const baseURL = "https://api.trello.com/1"

var fields = providers.Fields{
	Items:     "@",
	ID:        "id",
	Title:     "name",
	Body:      "desc",
	Format:    richtext.FormatMarkdown,
	Completed: "dueComplete",
	Due:       "due",
	Start:     "start",
	URL:       "shortUrl",
	Project:   "idBoard",
}

// Adapter authenticates with the app key and member token in the query string.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider: models.ProviderTrello,
			Target:   models.TargetTasks,
			Strategy: pagination.StrategySingle,
			Auth:     providers.AuthQuery,
			BaseURL:  baseURL,
			Host:     "trello.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, _ pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	query := url.Values{
		"filter": {"open"},
		"fields": {"id,name,desc,due,start,dueComplete,shortUrl,idBoard,idList"},
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{URL: a.URL("members/me/cards"), Query: query})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	return &pagination.Page[models.RemoteRecord]{Items: records}, nil
}
