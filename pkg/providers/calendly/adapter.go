// Package calendly syncs the connected user's active scheduled events.
package calendly

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
)

const (
	baseURL             = "https://api.calendly.com"
	defaultLookbackDays = 7
)

var fields = providers.Fields{
	Items:   "collection",
	ID:      "uri",
	Title:   "name",
	Start:   "start_time",
	End:     "end_time",
	URL:     "location.join_url",
	Creator: "event_memberships[0].user_email",
}

type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider: models.ProviderCalendly,
			Target:   models.TargetEvents,
			Strategy: pagination.StrategyCursor,
			BaseURL:  baseURL,
			Host:     "calendly.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	user := providers.Setting(integration, "user_uri")
	if user == "" {
		user = integration.ProfileString("uri")
	}
	if user == "" {
		return nil, providers.Misconfigured(models.ProviderCalendly, "user_uri")
	}

	since := a.Now().UTC().AddDate(0, 0, -providers.SettingInt(integration, "lookback_days", defaultLookbackDays))
	query := url.Values{
		"user":           {user},
		"status":         {"active"},
		"count":          {strconv.Itoa(min(a.PageSize(), 100))},
		"min_start_time": {since.Format(time.RFC3339)},
		"sort":           {"start_time:asc"},
	}
	if cursor.Token != "" {
		query.Set("page_token", cursor.Token)
	}

	data, _, err := a.FetchJSON(ctx, integration, httpclient.Request{URL: a.URL("scheduled_events"), Query: query})
	if err != nil {
		return nil, err
	}

	records, err := a.Extract(data, fields)
	if err != nil {
		return nil, err
	}
	next, err := a.Evaluator().EvaluateString("pagination.next_page_token", data)
	if err != nil {
		return nil, err
	}

	return &pagination.Page[models.RemoteRecord]{Items: records, Next: pagination.NextToken(next)}, nil
}
