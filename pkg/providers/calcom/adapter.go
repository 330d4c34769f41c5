// Package calcom syncs upcoming Cal.com bookings.
package calcom

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

const (
	baseURL    = "https://api.cal.com"
	apiVersion = "2024-08-13"
)

var fields = providers.Fields{
	Items:   "data",
	ID:      "uid",
	Title:   "title",
	Body:    "description",
	Format:  richtext.FormatPlain,
	Start:   "start",
	End:     "end",
	URL:     "meetingUrl || location",
	Creator: "hosts[0].email",
}

type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider: models.ProviderCalCom,
			Target:   models.TargetEvents,
			Strategy: pagination.StrategyOffset,
			BaseURL:  baseURL,
			Host:     "cal.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	limit := min(a.PageSize(), 100)
	query := url.Values{
		"status": {"upcoming"},
		"take":   {strconv.Itoa(limit)},
		"skip":   {strconv.Itoa(cursor.Offset)},
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{
		URL:     a.URL("v2/bookings"),
		Query:   query,
		Headers: map[string]string{"cal-api-version": apiVersion},
	})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	hasNext, err := a.Evaluator().EvaluateBool("pagination.hasNextPage", data)
	if err != nil {
		return nil, err
	}

	page := &pagination.Page[models.RemoteRecord]{Items: records}
	if hasNext {
		page.Next = pagination.NextOffset(cursor, len(records), len(records))
	}
	return page, nil
}
