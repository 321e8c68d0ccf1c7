// Package types defines the shared data model for the offline-sync library:
// queued mutations, cache metadata and sync results.
package types

import (
	"encoding/json"
	"time"
)

// Action identifies the remote mutation kind carried by a queue item.
type Action string

// Mutation kinds dispatched against the remote backend.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether the action is one of the known mutation kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Status is the lifecycle state of a queue item.
//
// pending --(success)--> completed (terminal)
// pending --(failure, retries left)--> pending
// pending --(failure, retries exhausted)--> failed (terminal)
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// QueueItem is one durable queued mutation awaiting replay against the
// remote backend. Items are created pending with zero retries and are only
// ever mutated by the sync manager's replay loop.
type QueueItem struct {
	ID           int64           `json:"id"`
	EntityType   string          `json:"entity_type"`
	Action       Action          `json:"action"`
	Collection   string          `json:"collection"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       Status          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	LastRetryAt  *time.Time      `json:"last_retry_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Metadata describes one cached epoch for an entity collection. It is held
// in a synchronous slot outside the durable store so validity can be
// checked without awaiting a store read.
//
// Count == 0 implies the collection is empty; ExpiresAt >= LastUpdated.
type Metadata struct {
	LastUpdated   time.Time `json:"last_updated"`
	Count         int       `json:"count"`
	TenantID      string    `json:"tenant_id,omitempty"`
	SchemaVersion int       `json:"schema_version"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// SyncResult aggregates the outcome of one replay pass.
type SyncResult struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncStatus is a point-in-time snapshot of the sync manager, intended for
// UI surfaces such as a pending-changes indicator.
type SyncStatus struct {
	Online   bool
	Syncing  bool
	Pending  int
	LastSync time.Time
}
