// Package jira syncs unresolved Jira Cloud issues assigned to the connected user.
package jira

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

const (
	baseURL = "https://api.atlassian.com"

	defaultJQL  = "assignee = currentUser() AND statusCategory != Done ORDER BY updated DESC"
	maxPageSize = 50
)

var fields = providers.Fields{
	Items:       "issues",
	ID:          "id",
	Title:       "fields.summary",
	Body:        "renderedFields.description",
	Format:      richtext.FormatHTML,
	Completed:   "fields.status.statusCategory.key == 'done'",
	CompletedAt: "fields.resolutiondate",
	Due:         "fields.duedate",
	Assignee:    "fields.assignee.displayName",
	Creator:     "fields.reporter.displayName",
	Project:     "fields.project.id",
}

// Adapter talks to one Atlassian cloud site through the OAuth gateway.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider: models.ProviderJira,
			Target:   models.TargetTasks,
			Strategy: pagination.StrategyOffset,
			BaseURL:  baseURL,
			HostFunc: siteHost,
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	cloudID := providers.Setting(integration, "cloud_id")
	if cloudID == "" {
		return nil, providers.Misconfigured(models.ProviderJira, "cloud_id")
	}
	jql := providers.Setting(integration, "jql")
	if jql == "" {
		jql = defaultJQL
	}
	limit := min(a.PageSize(), maxPageSize)

	query := url.Values{
		"jql":        {jql},
		"startAt":    {strconv.Itoa(cursor.Offset)},
		"maxResults": {strconv.Itoa(limit)},
		"fields":     {"summary,description,status,duedate,assignee,reporter,project,resolutiondate"},
		"expand":     {"renderedFields"},
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{
		URL:   a.URL("ex/jira/%s/rest/api/3/search", url.PathEscape(cloudID)),
		Query: query,
	})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}

	site := siteURL(integration)
	for i := range records {
		if key, _ := records[i].Metadata["key"].(string); key != "" && site != "" {
			records[i].URL = site + "/browse/" + key
		}
	}

	total, err := a.Evaluator().EvaluateInt("total", data)
	if err != nil {
		return nil, err
	}

	page := &pagination.Page[models.RemoteRecord]{Items: records}
	if cursor.Offset+len(records) < total {
		page.Next = pagination.NextOffset(cursor, len(records), len(records))
	}
	return page, nil
}

func siteURL(integration *models.Integration) string {
	return strings.TrimRight(providers.Setting(integration, "site_url"), "/")
}

// siteHost is the Atlassian site the integration belongs to, e.g. acme.atlassian.net.
func siteHost(integration *models.Integration) string {
	if u, err := url.Parse(siteURL(integration)); err == nil && u.Host != "" {
		return u.Host
	}
	return "atlassian.net"
}
