package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncRunStatus string

const (
	SyncRunStatusRunning SyncRunStatus = "running"
	SyncRunStatusSuccess SyncRunStatus = "success"
	SyncRunStatusFailed  SyncRunStatus = "failed"
)

// SyncTrigger records what started a pass.
type SyncTrigger string

const (
	SyncTriggerSchedule SyncTrigger = "schedule"
	SyncTriggerManual   SyncTrigger = "manual"
	SyncTriggerCLI      SyncTrigger = "cli"
)

// SyncRun is the history row for one sync pass.
type SyncRun struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	IntegrationID     uuid.UUID     `db:"integration_id" json:"integration_id"`
	WorkspaceID       uuid.UUID     `db:"workspace_id" json:"workspace_id"`
	Provider          Provider      `db:"provider" json:"provider"`
	Trigger           SyncTrigger   `db:"trigger" json:"trigger"`
	Status            SyncRunStatus `db:"status" json:"status"`
	Pages             int           `db:"pages" json:"pages"`
	RecordsFetched    int           `db:"records_fetched" json:"records_fetched"`
	RecordsUpserted   int           `db:"records_upserted" json:"records_upserted"`
	RecordsFailed     int           `db:"records_failed" json:"records_failed"`
	RecordsReconciled int           `db:"records_reconciled" json:"records_reconciled"`
	TokenRefreshed    bool          `db:"token_refreshed" json:"token_refreshed"`
	AuthRetries       int           `db:"auth_retries" json:"auth_retries"`
	ErrorKind         *string       `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage      *string       `db:"error_message" json:"error_message,omitempty"`
	StartedAt         time.Time     `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// TableName returns the database table name
func (SyncRun) TableName() string {
	return "sync_runs"
}
