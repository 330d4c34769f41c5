// Package github syncs open issues and pull requests assigned to the connected user.
package github

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

const baseURL = "https://api.github.com"

var headers = map[string]string{
	"Accept":               "application/vnd.github+json",
	"X-GitHub-Api-Version": "2022-11-28",
}

var fields = providers.Fields{
	Items:       "@",
	ID:          "id",
	Title:       "title",
	Body:        "body",
	Format:      richtext.FormatMarkdown,
	Completed:   "state == 'closed'",
	CompletedAt: "closed_at",
	Due:         "milestone.due_on",
	URL:         "html_url",
	Assignee:    "assignee.login",
	Creator:     "user.login",
	Project:     "repository.full_name",
}

// Adapter follows the Link header.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider: models.ProviderGitHub,
			Target:   models.TargetTasks,
			Strategy: pagination.StrategyNextLink,
			BaseURL:  baseURL,
			Host:     "github.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	req := httpclient.Request{URL: cursor.URL, Headers: map[string]string{}}
	for k, v := range headers {
		req.Headers[k] = v
	}
	if cursor.URL == "" {
		req.URL = a.URL("issues")
		req.Query = url.Values{
			"filter":   {"assigned"},
			"state":    {"open"},
			"per_page": {strconv.Itoa(min(a.PageSize(), 100))},
		}
	}

	data, resp, err := a.FetchJSON(ctx, integration, req)
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{
		Items: records,
		Next:  pagination.NextURL(httpclient.NextLink(resp.Header.Get("Link"))),
	}, nil
}
