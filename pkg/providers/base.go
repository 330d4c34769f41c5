package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

// DefaultPageSize is the page size adapters request when the provider allows choosing one.
const DefaultPageSize = 100

// AuthScheme is how an adapter presents the access token.
type AuthScheme int

const (
	// AuthBearer sends "Authorization: Bearer <token>".
	AuthBearer AuthScheme = iota
	// AuthRaw sends "Authorization: <token>" (ClickUp).
	AuthRaw
	// AuthQuery sends key=<client id>&token=<token> as query parameters (Trello).
	AuthQuery
)

// Deps are the shared services every adapter is built from.
type Deps struct {
	Client      *httpclient.Client
	Refresher   *oauth.Refresher
	Catalog     oauth.Catalog
	Credentials map[models.Provider]oauth.ClientCredentials
	Evaluator   *expressions.Evaluator
	Logger      ectologger.Logger

	// BaseURLs overrides an adapter's API root, e.g. to point at a test server.
	BaseURLs map[models.Provider]string

	PageSize int
	Now      func() time.Time
}

// Options describe one adapter.
type Options struct {
	Provider   models.Provider
	Target     models.RecordTarget
	Strategy   pagination.Strategy
	Reconciles bool
	Auth       AuthScheme

	// BaseURL is the API root requests are built against.
	BaseURL string

	// Host is the canonical host stored on local records. HostFunc wins when set.
	Host     string
	HostFunc func(integration *models.Integration) string
}

// Base implements the parts of Adapter that do not vary by provider. Adapters embed it.
type Base struct {
	opts     Options
	deps     Deps
	endpoint oauth.Endpoint
	creds    oauth.ClientCredentials
	baseURL  string
	pageSize int
}

// NewBase resolves the catalog endpoint, client credentials and base URL for opts.
func NewBase(deps Deps, opts Options) Base {
	if deps.Evaluator == nil {
		deps.Evaluator = expressions.NewEvaluator()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	endpoint, ok := deps.Catalog.Endpoint(string(opts.Provider))
	if !ok {
		endpoint = oauth.Endpoint{Provider: string(opts.Provider)}
	}

	baseURL := opts.BaseURL
	if override, ok := deps.BaseURLs[opts.Provider]; ok && override != "" {
		baseURL = override
	}

	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return Base{
		opts:     opts,
		deps:     deps,
		endpoint: endpoint,
		creds:    deps.Credentials[opts.Provider],
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
	}
}

func (b *Base) Provider() models.Provider {
	return b.opts.Provider
}

func (b *Base) Target() models.RecordTarget {
	return b.opts.Target
}

func (b *Base) Pagination() pagination.Strategy {
	return b.opts.Strategy
}

func (b *Base) Reconciles() bool {
	return b.opts.Reconciles
}

func (b *Base) Endpoint() oauth.Endpoint {
	return b.endpoint
}

// RefreshToken runs the refresh_token grant against the catalog endpoint.
func (b *Base) RefreshToken(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	return b.deps.Refresher.Refresh(ctx, b.endpoint, b.creds, refreshToken)
}

// Host returns the canonical host recorded on local records.
func (b *Base) Host(integration *models.Integration) string {
	if b.opts.HostFunc != nil {
		return b.opts.HostFunc(integration)
	}
	return b.opts.Host
}

func (b *Base) PageSize() int {
	return b.pageSize
}

func (b *Base) Evaluator() *expressions.Evaluator {
	return b.deps.Evaluator
}

func (b *Base) Logger() ectologger.Logger {
	return b.deps.Logger
}

func (b *Base) Now() time.Time {
	return b.deps.Now()
}

// URL joins path onto the adapter's base URL. Path segments are escaped by the caller.
func (b *Base) URL(path string, args ...any) string {
	if len(args) > 0 {
		path = fmt.Sprintf(path, args...)
	}
	return b.baseURL + "/" + strings.TrimLeft(path, "/")
}

// FetchJSON sends req with the integration's access token and decodes the JSON body.
// Auth failures come back as *httpclient.AuthError so the orchestrator can re-authenticate.
func (b *Base) FetchJSON(ctx context.Context, integration *models.Integration, req httpclient.Request) (any, *httpclient.Response, error) {
	req.Provider = string(b.opts.Provider)
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}

	switch b.opts.Auth {
	case AuthRaw:
		req.Headers["Authorization"] = integration.AccessToken
	case AuthQuery:
		if req.Query == nil {
			req.Query = url.Values{}
		}
		req.Query.Set("key", b.creds.ClientID)
		req.Query.Set("token", integration.AccessToken)
	default:
		req.BearerToken = integration.AccessToken
	}

	resp, err := b.deps.Client.Send(ctx, req)
	if err != nil {
		return nil, resp, fmt.Errorf("%s list request failed: %w", b.opts.Provider, err)
	}

	data, err := expressions.Decode(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("%s: %w", b.opts.Provider, err)
	}
	return data, resp, nil
}

// MapRecord projects remote into a pending or completed LocalRecord owned by the integration.
func (b *Base) MapRecord(integration *models.Integration, remote models.RemoteRecord, normalize richtext.Normalizer) (*models.LocalRecord, error) {
	if remote.Invalid != nil {
		return nil, remote.Invalid
	}
	if strings.TrimSpace(remote.ID) == "" {
		return nil, fmt.Errorf("%w: %s record without an id", ErrInvalidRecord, b.opts.Provider)
	}
	name := strings.TrimSpace(remote.Title)
	if name == "" {
		return nil, fmt.Errorf("%w: %s record %s has no title", ErrInvalidRecord, b.opts.Provider, remote.ID)
	}

	var description *richtext.Document
	if normalize != nil {
		doc, err := normalize(remote.Body, remote.BodyFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: %s record %s description: %w", ErrInvalidRecord, b.opts.Provider, remote.ID, err)
		}
		description = doc
	}

	metadata := remote.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	record := &models.LocalRecord{
		WorkspaceID:   integration.WorkspaceID,
		IntegrationID: integration.ID,
		Source:        b.opts.Provider,
		ExternalID:    remote.ID,
		Host:          b.Host(integration),
		Name:          name,
		Description:   database.NewJSONB(description),
		ExternalData:  database.NewJSONB(metadata),
		URL:           optional(remote.URL),
		Assignee:      optional(remote.Assignee),
		Creator:       optional(remote.Creator),
		ProjectID:     ProjectFor(integration, remote.ProjectID),
		Status:        models.RecordStatusPending,
		DueDate:       remote.DueAt,
		StartAt:       remote.StartAt,
		EndAt:         remote.EndAt,
	}

	if remote.Completed {
		record.Status = models.RecordStatusCompleted
		record.CompletedAt = remote.CompletedAt
		if record.CompletedAt == nil {
			now := b.Now().UTC()
			record.CompletedAt = &now
		}
	}

	return record, nil
}

// ProjectFor resolves a remote project id through the integration's "project_mapping" config.
func ProjectFor(integration *models.Integration, remoteProjectID string) *uuid.UUID {
	if remoteProjectID == "" || integration.Config.Data == nil {
		return nil
	}
	mapping, ok := integration.Config.Data["project_mapping"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := mapping[remoteProjectID].(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
