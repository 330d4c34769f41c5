package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/orchestrator"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const defaultRunsLimit = 20

// Syncer runs and tears down integrations
type Syncer interface {
	RunSync(ctx context.Context, integration *models.Integration, trigger models.SyncTrigger) *orchestrator.SyncResult
	Disconnect(ctx context.Context, id uuid.UUID) error
}

// Enqueuer hands a sync job to the worker pool
type Enqueuer interface {
	Enqueue(ctx context.Context, integration *models.Integration, trigger models.SyncTrigger) (string, error)
}

// IntegrationHandler handles integration-related API requests
type IntegrationHandler struct {
	integrations repositories.IntegrationRepo
	runs         repositories.SyncRunRepo
	syncer       Syncer
	enqueuer     Enqueuer
	logger       ectologger.Logger
}

// NewIntegrationHandler creates a new integration handler
func NewIntegrationHandler(
	integrations repositories.IntegrationRepo,
	runs repositories.SyncRunRepo,
	syncer Syncer,
	enqueuer Enqueuer,
	logger ectologger.Logger,
) *IntegrationHandler {
	return &IntegrationHandler{
		integrations: integrations,
		runs:         runs,
		syncer:       syncer,
		enqueuer:     enqueuer,
		logger:       logger,
	}
}

// SyncRequest holds the query parameters for POST /integrations/:id/sync
type SyncRequest struct {
	Wait bool `query:"wait"`
}

// ListRunsRequest holds the query parameters for GET /integrations/:id/runs
type ListRunsRequest struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

// SyncQueuedResponse is returned when a sync job was enqueued
type SyncQueuedResponse struct {
	JobID         string    `json:"job_id"`
	IntegrationID uuid.UUID `json:"integration_id"`
}

// SyncResultResponse is returned when a sync ran inline
type SyncResultResponse struct {
	RunID          uuid.UUID  `json:"run_id"`
	IntegrationID  uuid.UUID  `json:"integration_id"`
	Success        bool       `json:"success"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	Error          string     `json:"error,omitempty"`
	Pages          int        `json:"pages"`
	Fetched        int        `json:"records_fetched"`
	Upserted       int        `json:"records_upserted"`
	Failed         int        `json:"records_failed"`
	Reconciled     int        `json:"records_reconciled"`
	TokenRefreshed bool       `json:"token_refreshed"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func newSyncResultResponse(result *orchestrator.SyncResult) SyncResultResponse {
	resp := SyncResultResponse{
		RunID:          result.RunID,
		IntegrationID:  result.IntegrationID,
		Success:        result.Success,
		ErrorKind:      orchestrator.ErrorKind(result.Error),
		Pages:          result.Pages,
		Fetched:        result.Fetched,
		Upserted:       result.Upserted,
		Failed:         result.Failed,
		Reconciled:     result.Reconciled,
		TokenRefreshed: result.TokenRefreshed,
		StartedAt:      result.StartedAt,
	}
	if result.Error != nil {
		resp.Error = result.Error.Error()
	}
	if !result.CompletedAt.IsZero() {
		completed := result.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// RegisterRoutes registers the integration routes
func (h *IntegrationHandler) RegisterRoutes(g *echo.Group) {
	integrations := g.Group("/integrations")
	integrations.GET("/:id", h.Get)
	integrations.DELETE("/:id", h.Disconnect)
	integrations.POST("/:id/sync", h.Sync)
	integrations.GET("/:id/runs", h.ListRuns)
}

// load resolves the path integration inside the caller's workspace
func (h *IntegrationHandler) load(c echo.Context) (*models.Integration, error) {
	if _, err := GetWorkspaceID(c); err != nil {
		return nil, err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return nil, err
	}

	return h.integrations.GetByID(c.Request().Context(), id)
}

// Get handles GET /integrations/:id
func (h *IntegrationHandler) Get(c echo.Context) error {
	integration, err := h.load(c)
	if err != nil {
		return err
	}

	return SuccessResponse(c, integration)
}

// Sync handles POST /integrations/:id/sync. The pass is queued unless wait=true.
func (h *IntegrationHandler) Sync(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IntegrationHandler.Sync")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req SyncRequest
	if err := BindQuery(c, &req); err != nil {
		return err
	}

	integration, err := h.load(c)
	if err != nil {
		return err
	}

	if !req.Wait {
		jobID, err := h.enqueuer.Enqueue(ctx, integration, models.SyncTriggerManual)
		if err != nil {
			h.logger.WithContext(ctx).WithError(err).Errorf("Failed to enqueue sync for integration %s", integration.ID)
			return err
		}
		return AcceptedResponse(c, SyncQueuedResponse{JobID: jobID, IntegrationID: integration.ID})
	}

	result := h.syncer.RunSync(ctx, integration, models.SyncTriggerManual)
	if errors.Is(result.Error, orchestrator.ErrSyncInProgress) {
		return Conflict("a sync is already running for this integration")
	}
	return SuccessResponse(c, newSyncResultResponse(result))
}

// ListRuns handles GET /integrations/:id/runs
func (h *IntegrationHandler) ListRuns(c echo.Context) error {
	var req ListRunsRequest
	if err := BindQuery(c, &req); err != nil {
		return err
	}
	if req.Limit == 0 {
		req.Limit = defaultRunsLimit
	}

	integration, err := h.load(c)
	if err != nil {
		return err
	}

	runs, err := h.runs.ListByIntegration(c.Request().Context(), integration.ID, req.Limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	return SuccessResponse(c, runs)
}

// Disconnect handles DELETE /integrations/:id
func (h *IntegrationHandler) Disconnect(c echo.Context) error {
	integration, err := h.load(c)
	if err != nil {
		return err
	}

	if err := h.syncer.Disconnect(c.Request().Context(), integration.ID); err != nil {
		if errors.Is(err, orchestrator.ErrSyncInProgress) {
			return Conflict("a sync is running for this integration, try again shortly")
		}
		return err
	}

	return NoContentResponse(c)
}
