// Package microsofttodo syncs open tasks from a Microsoft To Do list through Microsoft Graph.
package microsofttodo

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

const baseURL = "https://graph.microsoft.com/v1.0"

// graphHeaders asks Graph for UTC date-times so zone-less values parse correctly.
var graphHeaders = map[string]string{"Prefer": `outlook.timezone="UTC"`}

var fields = providers.Fields{
	Items:       "value",
	ID:          "id",
	Title:       "title",
	Body:        "body.content",
	BodyFormat:  "body.contentType",
	Format:      richtext.FormatPlain,
	Completed:   "status == 'completed'",
	CompletedAt: "completedDateTime.dateTime",
	Due:         "dueDateTime.dateTime",
	Start:       "startDateTime.dateTime",
}

type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderMicrosoftToDo,
			Target:     models.TargetTasks,
			Strategy:   pagination.StrategyNextLink,
			Reconciles: true,
			BaseURL:    baseURL,
			Host:       "to-do.office.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	req := httpclient.Request{URL: cursor.URL, Headers: copyHeaders()}
	if cursor.URL == "" {
		list, err := a.listID(ctx, integration)
		if err != nil {
			return nil, err
		}
		req.URL = a.URL("me/todo/lists/%s/tasks", url.PathEscape(list))
		req.Query = url.Values{
			"$filter": {"status ne 'completed'"},
			"$top":    {strconv.Itoa(a.PageSize())},
		}
	}

	data, _, err := a.FetchJSON(ctx, integration, req)
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	next, err := a.Evaluator().EvaluateString(`"@odata.nextLink"`, data)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{Items: records, Next: pagination.NextURL(next)}, nil
}

// listID uses the configured list, or the account's default list.
func (a *Adapter) listID(ctx context.Context, integration *models.Integration) (string, error) {
	if list := providers.Setting(integration, "list_id"); list != "" {
		return list, nil
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{URL: a.URL("me/todo/lists"), Headers: copyHeaders()})
	if err != nil {
		return "", err
	}
	list, err := a.Evaluator().EvaluateString("value[?wellknownListName=='defaultList'] | [0].id", data)
	if err != nil {
		return "", err
	}
	if list == "" {
		return "", providers.Misconfigured(models.ProviderMicrosoftToDo, "list_id")
	}
	return list, nil
}

func copyHeaders() map[string]string {
	h := make(map[string]string, len(graphHeaders))
	for k, v := range graphHeaders {
		h[k] = v
	}
	return h
}
