package outbox

import (
	"encoding/json"
	"time"
)

// Entity types with a registered push handler.
const (
	EntityCustomer     = "customer"
	EntityOpeningEntry = "pos_opening_entry"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Entry is a queued creation of an entity made while offline. An entry carrying a
// RemoteID is terminal.
type Entry struct {
	LocalID       string          `db:"local_id" json:"local_id"`
	EntityType    string          `db:"entity_type" json:"entity_type"`
	EntityLocalID string          `db:"entity_local_id" json:"entity_local_id"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        Status          `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	LastError     *string         `db:"last_error" json:"last_error,omitempty"`
	RemoteID      *string         `db:"remote_id" json:"remote_id,omitempty"`
	RemoteDraft   *string         `db:"remote_draft" json:"remote_draft,omitempty"`
	Conflict      bool            `db:"conflict" json:"conflict"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	LastAttemptAt *time.Time      `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
}

// Conflict is an entry the backend rejected as a duplicate.
type Conflict struct {
	LocalID       string `json:"local_id"`
	EntityType    string `json:"entity_type"`
	EntityLocalID string `json:"entity_local_id"`
	Message       string `json:"message"`
}

// PushReport summarises one push cycle.
type PushReport struct {
	HasChanges bool       `json:"has_changes"`
	Pushed     int        `json:"pushed"`
	Failed     int        `json:"failed"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Statuses     []Status
	ConflictOnly bool
}
