// Package asana syncs the incomplete Asana tasks assigned to the connected user.
package asana

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
	baseURL   = "https://app.asana.com/api/1.0"
	optFields = "name,notes,completed,completed_at,due_at,due_on,start_at,start_on,permalink_url,assignee.name,created_by.name,projects.gid"
)

var fields = providers.Fields{
	Items:       "data",
	ID:          "gid",
	Title:       "name",
	Body:        "notes",
	Format:      richtext.FormatPlain,
	Completed:   "completed",
	CompletedAt: "completed_at",
	Due:         "due_at || due_on",
	Start:       "start_at || start_on",
	URL:         "permalink_url",
	Assignee:    "assignee.name",
	Creator:     "created_by.name",
	Project:     "projects[0].gid",
}

// Adapter lists with completed_since=now, so only incomplete tasks come back.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderAsana,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategyCursor,
			Reconciles: true,
			BaseURL:    baseURL,
			Host:       "app.asana.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	workspace := providers.Setting(integration, "workspace_gid")
	if workspace == "" {
		return nil, providers.Misconfigured(models.ProviderAsana, "workspace_gid")
	}

	query := url.Values{
		"assignee":        {"me"},
		"workspace":       {workspace},
		"completed_since": {"now"},
		"limit":           {strconv.Itoa(min(a.PageSize(), 100))},
		"opt_fields":      {optFields},
	}
	if cursor.Token != "" {
		query.Set("offset", cursor.Token)
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{URL: a.URL("tasks"), Query: query})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	next, err := a.Evaluator().EvaluateString("next_page.offset", data)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{Items: records, Next: pagination.NextToken(next)}, nil
}
