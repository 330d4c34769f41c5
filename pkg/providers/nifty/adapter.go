// Package nifty syncs incomplete Nifty tasks.
package nifty

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

const baseURL = "https://openapi.niftypm.com/api/v1.0"

var fields = providers.Fields{
	Items:       "tasks",
	ID:          "id",
	Title:       "name",
	Body:        "description",
	Format:      richtext.FormatHTML,
	Completed:   "completed",
	CompletedAt: "completed_at",
	Due:         "due_date",
	Start:       "start_date",
	Assignee:    "assignees[0]",
	Creator:     "created_by",
	Project:     "project",
}

type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderNifty,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategyOffset,
			Reconciles: true,
			BaseURL:    baseURL,
			Host:       "niftypm.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	limit := a.PageSize()
	query := url.Values{
		"completed": {"false"},
		"limit":     {strconv.Itoa(limit)},
		"offset":    {strconv.Itoa(cursor.Offset)},
	}
	if project := providers.Setting(integration, "project_id"); project != "" {
		query.Set("project_id", project)
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{URL: a.URL("tasks"), Query: query})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	hasMore, err := a.Evaluator().EvaluateBool("hasMore", data)
	if err != nil {
		return nil, err
	}

	page := &pagination.Page[models.RemoteRecord]{Items: records}
	if hasMore {
		page.Next = pagination.NextOffset(cursor, len(records), len(records))
	}
	return page, nil
}
