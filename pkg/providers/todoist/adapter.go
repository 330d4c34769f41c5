// Package todoist syncs active Todoist tasks.
package todoist

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

const baseURL = "https://api.todoist.com/api/v1"

var fields = providers.Fields{
	Items:       "results",
	ID:          "id",
	Title:       "content",
	Body:        "description",
	Format:      richtext.FormatMarkdown,
	Completed:   "checked",
	CompletedAt: "completed_at",
	Due:         "due.datetime || due.date",
	URL:         "join('', ['https://app.todoist.com/app/task/', to_string(id)])",
	Assignee:    "responsible_uid",
	Creator:     "added_by_uid",
	Project:     "project_id",
}

// Adapter lists the tasks endpoint, which only returns open tasks.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderTodoist,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategyCursor,
			Reconciles: true,
			BaseURL:    baseURL,
			Host:       "todoist.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	query := url.Values{"limit": {strconv.Itoa(min(a.PageSize(), 200))}}
	if cursor.Token != "" {
		query.Set("cursor", cursor.Token)
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
	next, err := a.Evaluator().EvaluateString("next_cursor", data)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{Items: records, Next: pagination.NextToken(next)}, nil
}
