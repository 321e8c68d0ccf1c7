// Package remote defines the boundary to the remote backend that queued
// mutations are replayed against. The sync manager treats the backend as
// an opaque (entity type, action, payload) -> error service.
package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/huykn/offline-sync/types"
)

// Operation is one mutation dispatched to the backend. EntityType tags the
// payload variant so backends can dispatch explicitly instead of
// inspecting the payload's shape. Payloads must carry their primary key;
// Key holds the extracted value.
type Operation struct {
	EntityType string
	Action     types.Action
	Collection string
	Key        string
	Data       json.RawMessage
}

// Backend applies one mutation against the remote resource named by the
// operation's collection. Implementations must be safe for sequential
// reuse across replay passes; errors are recorded on the queue item and
// drive the retry/failed transition.
type Backend interface {
	Apply(ctx context.Context, op Operation) error
}

// ErrUnknownAction is returned when an operation carries an action the
// backend does not implement.
var ErrUnknownAction = errors.New("unknown operation action")

// ErrMissingKey is returned when an operation's payload carries no primary
// key.
var ErrMissingKey = errors.New("operation key is required")
