package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/richtext"
	"github.com/google/uuid"
)

// RecordTarget names the local table a provider syncs into.
type RecordTarget string

const (
	TargetTasks  RecordTarget = "tasks"
	TargetEvents RecordTarget = "events"
)

type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "pending"
	RecordStatusInProgress RecordStatus = "in_progress"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusCancelled  RecordStatus = "cancelled"
)

// IsTerminal reports whether reconciliation must leave the status alone.
func (s RecordStatus) IsTerminal() bool {
	return s == RecordStatusCompleted || s == RecordStatusCancelled
}

// NonTerminalStatuses are the statuses reconciliation may move to completed.
func NonTerminalStatuses() []string {
	return []string{string(RecordStatusPending), string(RecordStatusInProgress)}
}

// RemoteRecord is a task or event as a provider returned it. It only lives for one sync pass.
// CompletedAt is only set when the provider reports a completion time.
type RemoteRecord struct {
	ID          string
	Title       string
	Body        string
	BodyFormat  richtext.Format
	Completed   bool
	CompletedAt *time.Time
	DueAt       *time.Time
	StartAt     *time.Time
	EndAt       *time.Time
	URL         string
	Assignee    string
	Creator     string
	ProjectID   string
	Metadata    map[string]any

	// Invalid is set when the item could not be read. ID is kept when it was readable.
	Invalid error
}

// LocalRecord is a row in the tasks or events table.
// (Source, ExternalID, Host, WorkspaceID) is unique.
type LocalRecord struct {
	ID            uuid.UUID                          `db:"id" json:"id"`
	WorkspaceID   uuid.UUID                          `db:"workspace_id" json:"workspace_id"`
	IntegrationID uuid.UUID                          `db:"integration_id" json:"integration_id"`
	Source        Provider                           `db:"source" json:"source"`
	ExternalID    string                             `db:"external_id" json:"external_id"`
	Host          string                             `db:"host" json:"host"`
	Name          string                             `db:"name" json:"name"`
	Description   database.JSONB[*richtext.Document] `db:"description" json:"description"`
	ExternalData  database.JSONB[map[string]any]     `db:"external_data" json:"external_data"`
	URL           *string                            `db:"url" json:"url,omitempty"`
	Assignee      *string                            `db:"assignee" json:"assignee,omitempty"`
	Creator       *string                            `db:"creator" json:"creator,omitempty"`
	ProjectID     *uuid.UUID                         `db:"project_id" json:"project_id,omitempty"`
	Status        RecordStatus                       `db:"status" json:"status"`
	CompletedAt   *time.Time                         `db:"completed_at" json:"completed_at,omitempty"`
	DueDate       *time.Time                         `db:"due_date" json:"due_date,omitempty"`
	StartAt       *time.Time                         `db:"start_at" json:"start_at,omitempty"`
	EndAt         *time.Time                         `db:"end_at" json:"end_at,omitempty"`
	CreatedAt     time.Time                          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                          `db:"updated_at" json:"updated_at"`
}

// Key is the uniqueness tuple used for upserts.
func (r *LocalRecord) Key() RecordKey {
	return RecordKey{Source: r.Source, ExternalID: r.ExternalID, Host: r.Host, WorkspaceID: r.WorkspaceID}
}

type RecordKey struct {
	Source      Provider
	ExternalID  string
	Host        string
	WorkspaceID uuid.UUID
}
