// Package ticktick syncs undone TickTick tasks across the inbox and every project.
package ticktick

import (
	"context"
	"net/url"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

const (
	baseURL = "https://api.ticktick.com/open/v1"

	// TickTick marks completed tasks with status 2.
	statusCompleted = "`2`"
)

var fields = providers.Fields{
	Items:       "tasks",
	ID:          "id",
	Title:       "title",
	Body:        "content || desc",
	Format:      richtext.FormatMarkdown,
	Completed:   "status == " + statusCompleted,
	CompletedAt: "completedTime",
	Due:         "dueDate",
	Start:       "startDate",
	URL:         "join('', ['https://ticktick.com/webapp/#p/', projectId, '/tasks/', id])",
	Project:     "projectId",
}

// Adapter has no paging: one pass reads the project list, then each project's open tasks.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderTickTick,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategySingle,
			Reconciles: true,
			BaseURL:    baseURL,
			Host:       "ticktick.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, _ pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	projects, _, err := a.FetchJSON(ctx, integration, httpclient.Request{URL: a.URL("project")})
	if err != nil {
		return nil, err
	}
	projectIDs, err := a.Evaluator().EvaluateSlice("[].id", projects)
	if err != nil {
		return nil, err
	}

	ids := []any{"inbox"}
	ids = append(ids, projectIDs...)

	var records []models.RemoteRecord
	for _, id := range ids {
		projectID, ok := id.(string)
		if !ok || projectID == "" {
			continue
		}

		data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{
			URL: a.URL("project/%s/data", url.PathEscape(projectID)),
		})
		if err != nil {
			return nil, err
		}
		page, err := a.Extract(data, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
	}

	return &pagination.Page[models.RemoteRecord]{Items: records}, nil
}
