package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/providers/providertest"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

type fakeIntegrations struct {
	mu           sync.Mutex
	integrations map[uuid.UUID]*models.Integration
	credentials  []models.Credentials
	statuses     []models.IntegrationStatus
	synced       []time.Time
	deleted      []uuid.UUID

	credentialsErr error
	markSyncedErr  error
}

func newFakeIntegrations(integrations ...*models.Integration) *fakeIntegrations {
	f := &fakeIntegrations{integrations: map[uuid.UUID]*models.Integration{}}
	for _, i := range integrations {
		copied := *i
		f.integrations[i.ID] = &copied
	}
	return f
}

func (f *fakeIntegrations) Create(_ context.Context, integration *models.Integration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.integrations[integration.ID] = integration
	return nil
}

func (f *fakeIntegrations) GetByID(_ context.Context, id uuid.UUID) (*models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.integrations[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "integration %s does not exist", id)
	}
	copied := *i
	return &copied, nil
}

func (f *fakeIntegrations) UpdateCredentials(_ context.Context, id uuid.UUID, creds models.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credentialsErr != nil {
		return f.credentialsErr
	}
	f.credentials = append(f.credentials, creds)
	if i, ok := f.integrations[id]; ok {
		i.AccessToken = creds.AccessToken
		i.RefreshToken = creds.RefreshToken
		i.ExpiresAt = creds.ExpiresAt
		i.Status = models.IntegrationStatusActive
	}
	return nil
}

func (f *fakeIntegrations) UpdateStatus(_ context.Context, id uuid.UUID, status models.IntegrationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	if i, ok := f.integrations[id]; ok {
		i.Status = status
	}
	return nil
}

func (f *fakeIntegrations) MarkSynced(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markSyncedErr != nil {
		return f.markSyncedErr
	}
	f.synced = append(f.synced, at)
	if i, ok := f.integrations[id]; ok {
		i.LastSync = &at
		i.Status = models.IntegrationStatusActive
	}
	return nil
}

func (f *fakeIntegrations) ListDue(context.Context, time.Time, time.Time, int) ([]models.Integration, error) {
	return nil, nil
}

func (f *fakeIntegrations) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.integrations[id]; !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "integration %s does not exist", id)
	}
	delete(f.integrations, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type recordKey struct {
	source     models.Provider
	externalID string
	host       string
	workspace  uuid.UUID
}

// fakeRecords is an in-memory tasks/events store keyed like the real unique index.
type fakeRecords struct {
	mu      sync.Mutex
	rows    map[recordKey]*models.LocalRecord
	upserts int
	failIDs map[string]bool

	// gates hold consecutive groups of upserts until every member of the group has arrived.
	gates     []*gate
	arrived   int
	completed int
	gateFail  bool
	startSeen []int
	inFlight  int
	maxFlight int
}

type gate struct {
	size    int
	arrived int
	open    chan struct{}
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[recordKey]*models.LocalRecord{}, failIDs: map[string]bool{}}
}

func (f *fakeRecords) withGates(sizes ...int) *fakeRecords {
	for _, size := range sizes {
		f.gates = append(f.gates, &gate{size: size, open: make(chan struct{})})
	}
	return f
}

// gateFor returns the gate the n-th upsert (1-based) belongs to, or nil past the last one.
func (f *fakeRecords) gateFor(n int) *gate {
	for _, g := range f.gates {
		if n <= g.size {
			return g
		}
		n -= g.size
	}
	return nil
}

func (f *fakeRecords) seed(records ...models.LocalRecord) {
	for _, r := range records {
		copied := r
		f.rows[keyOf(&copied)] = &copied
	}
}

func keyOf(r *models.LocalRecord) recordKey {
	return recordKey{source: r.Source, externalID: r.ExternalID, host: r.Host, workspace: r.WorkspaceID}
}

func (f *fakeRecords) Upsert(_ context.Context, _ models.RecordTarget, record *models.LocalRecord) error {
	f.mu.Lock()
	f.arrived++
	f.inFlight++
	f.maxFlight = max(f.maxFlight, f.inFlight)
	f.startSeen = append(f.startSeen, f.completed)
	g := f.gateFor(f.arrived)
	if g != nil {
		g.arrived++
		if g.arrived == g.size {
			close(g.open)
		}
	}
	f.mu.Unlock()

	if g != nil {
		select {
		case <-g.open:
		case <-time.After(2 * time.Second):
			f.mu.Lock()
			f.gateFail = true
			f.mu.Unlock()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	f.completed++

	if f.failIDs[record.ExternalID] {
		return errors.New("connection reset")
	}
	f.upserts++
	copied := *record
	if existing, ok := f.rows[keyOf(record)]; ok {
		copied.ID = existing.ID
	} else {
		copied.ID = uuid.New()
	}
	f.rows[keyOf(record)] = &copied
	return nil
}

func (f *fakeRecords) CompleteMissing(_ context.Context, _ models.RecordTarget, scope repositories.ReconcileScope, activeIDs []string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if r.IntegrationID != scope.IntegrationID || r.WorkspaceID != scope.WorkspaceID || r.Source != scope.Source {
			continue
		}
		if r.Status.IsTerminal() || slices.Contains(activeIDs, r.ExternalID) {
			continue
		}
		r.Status = models.RecordStatusCompleted
		completedAt := now
		r.CompletedAt = &completedAt
		n++
	}
	return n, nil
}

func (f *fakeRecords) DeletePendingUndated(_ context.Context, _ models.RecordTarget, integrationID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, r := range f.rows {
		if r.IntegrationID == integrationID && r.Status == models.RecordStatusPending && r.DueDate == nil && r.StartAt == nil {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRecords) ListByIntegration(_ context.Context, _ models.RecordTarget, integrationID uuid.UUID) ([]models.LocalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LocalRecord
	for _, r := range f.rows {
		if r.IntegrationID == integrationID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRecords) byExternalID(id string) *models.LocalRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ExternalID == id {
			copied := *r
			return &copied
		}
	}
	return nil
}

type fakeRuns struct {
	mu        sync.Mutex
	created   []models.SyncRun
	completed []models.SyncRun
}

func (f *fakeRuns) Create(_ context.Context, run *models.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRuns) Complete(_ context.Context, run *models.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, *run)
	return nil
}

func (f *fakeRuns) ListByIntegration(context.Context, uuid.UUID, int) ([]models.SyncRun, error) {
	return nil, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.SyncEventMessage
}

func (p *recordingPublisher) PublishSyncEvent(_ context.Context, evt *kafka.SyncEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// fakeAdapter scripts list and refresh responses. Mapping comes from the real providers.Base.
type fakeAdapter struct {
	providers.Base
	endpoint oauth.Endpoint

	mu           sync.Mutex
	listCalls    int
	refreshCalls int
	tokensSeen   []string

	list    func(call int, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error)
	refresh func(refreshToken string) (*oauth.Token, error)
}

func newFakeAdapter(strategy pagination.Strategy, reconciles bool) *fakeAdapter {
	deps := providertest.Deps(models.ProviderAsana, "http://unused")
	return &fakeAdapter{
		Base: providers.NewBase(deps, providers.Options{
			Provider:   models.ProviderAsana,
			Target:     models.TargetTasks,
			Strategy:   strategy,
			Reconciles: reconciles,
			Host:       "app.asana.com",
		}),
		endpoint: oauth.Endpoint{Provider: "asana", TokenURL: "https://app.asana.com/-/oauth_token", Expires: true},
	}
}

func (a *fakeAdapter) Endpoint() oauth.Endpoint {
	return a.endpoint
}

func (a *fakeAdapter) RefreshToken(_ context.Context, refreshToken string) (*oauth.Token, error) {
	a.mu.Lock()
	a.refreshCalls++
	a.mu.Unlock()
	if a.refresh == nil {
		return nil, errors.New("refresh not scripted")
	}
	return a.refresh(refreshToken)
}

func (a *fakeAdapter) ListPage(_ context.Context, integration *models.Integration, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
	a.mu.Lock()
	a.listCalls++
	call := a.listCalls
	a.tokensSeen = append(a.tokensSeen, integration.AccessToken)
	a.mu.Unlock()
	return a.list(call, cursor)
}

type adapterSource struct {
	adapter providers.Adapter
}

func (s adapterSource) Get(provider models.Provider) (providers.Adapter, error) {
	if s.adapter == nil || s.adapter.Provider() != provider {
		return nil, providers.ErrUnsupportedProvider
	}
	return s.adapter, nil
}

// unreachableLocker fails every acquisition the way a locker with redis down does.
type unreachableLocker struct {
	err error
}

func (l unreachableLocker) WithLock(context.Context, string, time.Duration, func(ctx context.Context) error) error {
	return l.err
}
