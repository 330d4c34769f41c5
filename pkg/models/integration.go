package models

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/google/uuid"
)

// Provider identifies the third-party service an integration talks to.
type Provider string

const (
	ProviderAsana             Provider = "asana"
	ProviderClickUp           Provider = "clickup"
	ProviderGitHub            Provider = "github"
	ProviderJira              Provider = "jira"
	ProviderTrello            Provider = "trello"
	ProviderTodoist           Provider = "todoist"
	ProviderTickTick          Provider = "ticktick"
	ProviderGoogleTasks       Provider = "google_tasks"
	ProviderMicrosoftToDo     Provider = "microsoft_todo"
	ProviderMicrosoftCalendar Provider = "microsoft_calendar"
	ProviderNifty             Provider = "nifty"
	ProviderAwork             Provider = "awork"
	ProviderCalendly          Provider = "calendly"
	ProviderCalCom            Provider = "calcom"
)

// IntegrationStatus is the health of an integration. Only two states exist.
type IntegrationStatus string

const (
	IntegrationStatusActive IntegrationStatus = "active"
	IntegrationStatusError  IntegrationStatus = "error"
)

// Integration is one user's OAuth connection to one provider inside a workspace.
type Integration struct {
	ID           uuid.UUID                      `db:"id" json:"id" validate:"required"`
	Provider     Provider                       `db:"provider" json:"provider" validate:"required"`
	UserID       uuid.UUID                      `db:"user_id" json:"user_id"`
	WorkspaceID  uuid.UUID                      `db:"workspace_id" json:"workspace_id" validate:"required"`
	AccessToken  string                         `db:"access_token" json:"-"`
	RefreshToken *string                        `db:"refresh_token" json:"-"`
	ExpiresAt    *time.Time                     `db:"expires_at" json:"expires_at,omitempty"`
	Status       IntegrationStatus              `db:"status" json:"status" validate:"omitempty,oneof=active error"`
	Config       database.JSONB[map[string]any] `db:"config" json:"config"`
	Profile      database.JSONB[map[string]any] `db:"profile" json:"profile"`
	LastSync     *time.Time                     `db:"last_sync" json:"last_sync,omitempty"`
	CreatedAt    time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time                      `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Integration) TableName() string {
	return "integrations"
}

// IsExpired reports whether the access token must be refreshed before use.
// A missing expiry counts as expired.
func (i *Integration) IsExpired(now time.Time) bool {
	return i.ExpiresAt == nil || now.After(*i.ExpiresAt)
}

func (i *Integration) HasRefreshToken() bool {
	return i.RefreshToken != nil && *i.RefreshToken != ""
}

// ConfigString reads a string setting from the provider config.
func (i *Integration) ConfigString(key string) string {
	return stringValue(i.Config.Data, key)
}

// ProfileString reads a string value from the provider profile, e.g. the remote user id.
func (i *Integration) ProfileString(key string) string {
	return stringValue(i.Profile.Data, key)
}

func stringValue(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

// Credentials is the token set written back after a refresh.
type Credentials struct {
	AccessToken  string     `db:"access_token"`
	RefreshToken *string    `db:"refresh_token"`
	ExpiresAt    *time.Time `db:"expires_at"`
}
