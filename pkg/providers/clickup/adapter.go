// Package clickup syncs open ClickUp tasks for a team, optionally narrowed to the connected user.
package clickup

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
	baseURL = "https://api.clickup.com/api/v2"

	// ClickUp returns at most 100 tasks per page and does not take a size.
	pageSize = 100
)

var fields = providers.Fields{
	Items:       "tasks",
	ID:          "id",
	Title:       "name",
	Body:        "markdown_description || text_content",
	Format:      richtext.FormatMarkdown,
	Completed:   "status.type == 'closed' || status.type == 'done'",
	CompletedAt: "date_closed || date_done",
	Due:         "due_date",
	Start:       "start_date",
	URL:         "url",
	Assignee:    "assignees[0].username",
	Creator:     "creator.username",
	Project:     "list.id",
}

type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderClickUp,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategyPage,
			Reconciles: true,
			Auth:       providers.AuthRaw,
			BaseURL:    baseURL,
			Host:       "app.clickup.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	team := providers.Setting(integration, "team_id")
	if team == "" {
		return nil, providers.Misconfigured(models.ProviderClickUp, "team_id")
	}

	query := url.Values{
		"page":                         {strconv.Itoa(cursor.Page)},
		"include_closed":               {"false"},
		"subtasks":                     {"true"},
		"include_markdown_description": {"true"},
	}
	if user := integration.ProfileString("user_id"); user != "" {
		query.Add("assignees[]", user)
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{
		URL:   a.URL("team/%s/task", url.PathEscape(team)),
		Query: query,
	})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	lastPage, err := a.Evaluator().EvaluateBool("last_page", data)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{
		Items: records,
		Next:  pagination.NextPageNumber(cursor, 0, len(records), pageSize, lastPage),
	}, nil
}
