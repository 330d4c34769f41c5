// Package googletasks syncs incomplete tasks from one Google Tasks list.
package googletasks

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
	baseURL         = "https://tasks.googleapis.com/tasks/v1"
	defaultTaskList = "@default"
)

var fields = providers.Fields{
	Items:       "items",
	ID:          "id",
	Title:       "title",
	Body:        "notes",
	Format:      richtext.FormatPlain,
	Completed:   "status == 'completed'",
	CompletedAt: "completed",
	Due:         "due",
	URL:         "webViewLink || selfLink",
}

type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderGoogleTasks,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategyCursor,
			Reconciles: true,
			BaseURL:    baseURL,
			Host:       "tasks.google.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	list := providers.Setting(integration, "task_list_id")
	if list == "" {
		list = defaultTaskList
	}

	query := url.Values{
		"showCompleted": {"false"},
		"showHidden":    {"false"},
		"maxResults":    {strconv.Itoa(min(a.PageSize(), 100))},
	}
	if cursor.Token != "" {
		query.Set("pageToken", cursor.Token)
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{
		URL:   a.URL("lists/%s/tasks", url.PathEscape(list)),
		Query: query,
	})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	next, err := a.Evaluator().EvaluateString("nextPageToken", data)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{Items: records, Next: pagination.NextToken(next)}, nil
}
