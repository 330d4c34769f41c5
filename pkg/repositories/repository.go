package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/database"
)

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// BadRequest returns a 400 HTTP error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// Internal returns a 500 HTTP error
func Internal(message string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// Repository provides common database operations
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// Conn returns the transaction on ctx when one is open, otherwise the database.
func (r *Repository) Conn(ctx context.Context) database.Querier {
	return database.Conn(ctx, r.db)
}

// WorkspaceScope returns the workspace carried on ctx. ok is false for internal callers
// (scheduler, worker, CLI) that run without a request scope.
func WorkspaceScope(ctx context.Context) (workspaceID uuid.UUID, ok bool, err error) {
	raw := appctx.GetWorkspaceID(ctx)
	if raw == "" {
		return uuid.Nil, false, nil
	}

	workspaceID, err = uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, httperror.NewHTTPError(http.StatusUnauthorized, "invalid workspace")
	}
	return workspaceID, true, nil
}
