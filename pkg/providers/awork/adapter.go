// Package awork syncs awork tasks that are not done.
package awork

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
	baseURL   = "https://api.awork.com/api/v1"
	firstPage = 1
)

var fields = providers.Fields{
	Items:     "@",
	ID:        "id",
	Title:     "name",
	Body:      "description",
	Format:    richtext.FormatHTML,
	Completed: "taskStatus.type == 'done'",
	Due:       "dueOn",
	Start:     "startOn",
	Creator:   "createdBy",
	Project:   "projectId",
}

// Adapter reads the plain JSON array awork returns, one page number at a time.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderAwork,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategyPage,
			Reconciles: true,
			BaseURL:    baseURL,
			Host:       "awork.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	page := max(cursor.Page, firstPage)
	limit := a.PageSize()

	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(limit)},
		"filterby": {"taskStatus/type ne 'done'"},
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{URL: a.URL("me/assignedtasks"), Query: query})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{
		Items: records,
		Next:  pagination.NextPageNumber(pagination.Cursor{Page: page}, firstPage, len(records), limit, false),
	}, nil
}
