// Package microsoftcalendar syncs Outlook calendar events in a rolling window.
package microsoftcalendar

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

const (
	baseURL = "https://graph.microsoft.com/v1.0"

	defaultLookbackDays  = 7
	defaultLookaheadDays = 30
)

var fields = providers.Fields{
	Items:      "value",
	ID:         "id",
	Title:      "subject",
	Body:       "body.content",
	BodyFormat: "body.contentType",
	Format:     richtext.FormatHTML,
	Start:      "start.dateTime",
	End:        "end.dateTime",
	URL:        "webLink",
	Creator:    "organizer.emailAddress.address",
}

// Adapter reads calendarView, which expands recurring series into occurrences.
type Adapter struct {
	providers.Base
}

func New(deps providers.Deps) *Adapter {
	return &Adapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider: models.ProviderMicrosoftCalendar,
			Target:   models.TargetEvents,
			Strategy: pagination.StrategyNextLink,
			BaseURL:  baseURL,
			Host:     "outlook.office.com",
		}),
	}
}

func (a *Adapter) ListPage(ctx context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	req := httpclient.Request{
		URL:     cursor.URL,
		Headers: map[string]string{"Prefer": `outlook.timezone="UTC", outlook.body-content-type="html"`},
	}
	if cursor.URL == "" {
		now := a.Now().UTC()
		from := now.AddDate(0, 0, -providers.SettingInt(integration, "lookback_days", defaultLookbackDays))
		to := now.AddDate(0, 0, providers.SettingInt(integration, "lookahead_days", defaultLookaheadDays))

		req.URL = a.URL("me/calendarView")
		req.Query = url.Values{
			"startDateTime": {from.Format(time.RFC3339)},
			"endDateTime":   {to.Format(time.RFC3339)},
			"$top":          {strconv.Itoa(min(a.PageSize(), 50))},
			"$orderby":      {"start/dateTime"},
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
