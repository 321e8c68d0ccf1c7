// Package store provides the durable, collection-oriented local store that
// backs every cache service, plus the append-only mutation queue drained by
// the sync manager.
//
// The schema (collection names, primary keys, secondary indexes) is
// declared once at construction. Values are opaque JSON documents; the
// store only interprets the declared key path and index fields.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/huykn/offline-sync/types"
)

// QueueCollection is the reserved name of the built-in mutation queue.
const QueueCollection = "sync_queue"

// Index declares a secondary index over one document field.
type Index struct {
	Name  string
	Field string
}

// Collection declares one named collection and its key path.
type Collection struct {
	Name    string
	KeyPath string
	Indexes []Index
}

// Schema declares all collections a store serves. The mutation queue is
// built in and must not be declared.
type Schema struct {
	Collections []Collection
}

// Validate checks the schema for empty or reserved names.
func (s Schema) Validate() error {
	if len(s.Collections) == 0 {
		return errors.New("schema declares no collections")
	}
	seen := make(map[string]bool, len(s.Collections))
	for _, c := range s.Collections {
		if c.Name == "" {
			return errors.New("collection name is required")
		}
		if c.Name == QueueCollection {
			return fmt.Errorf("collection name %q is reserved", QueueCollection)
		}
		if c.KeyPath == "" {
			return fmt.Errorf("collection %q: key path is required", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("collection %q declared twice", c.Name)
		}
		seen[c.Name] = true
		for _, idx := range c.Indexes {
			if idx.Name == "" || idx.Field == "" {
				return fmt.Errorf("collection %q: index name and field are required", c.Name)
			}
		}
	}
	return nil
}

func (s Schema) byName() map[string]Collection {
	m := make(map[string]Collection, len(s.Collections))
	for _, c := range s.Collections {
		m[c.Name] = c
	}
	return m
}

// QueuePatch is a partial update to a queue item. Nil fields are left
// untouched.
type QueuePatch struct {
	Status       *types.Status
	RetryCount   *int
	LastRetryAt  *time.Time
	ErrorMessage *string
	CompletedAt  *time.Time
}

// Store is the durable local store contract. Implementations must be safe
// for concurrent use; Init must be idempotent, with concurrent callers
// sharing a single schema setup.
type Store interface {
	// Init opens or creates the underlying schema. Safe to call
	// concurrently and more than once.
	Init(ctx context.Context) error

	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (json.RawMessage, error)

	// GetAll returns every document in the collection, ordered by key.
	GetAll(ctx context.Context, collection string) ([]json.RawMessage, error)

	// GetAllByIndex returns documents whose declared index field equals
	// value.
	GetAllByIndex(ctx context.Context, collection, index, value string) ([]json.RawMessage, error)

	// Put upserts a single document; its key is extracted from the
	// collection's key path.
	Put(ctx context.Context, collection string, value json.RawMessage) error

	// PutAll upserts a batch. The batch succeeds or fails as a unit.
	PutAll(ctx context.Context, collection string, values []json.RawMessage) error

	// ReplaceAll atomically clears the collection and writes values in a
	// single transaction, so readers never observe a partial epoch.
	ReplaceAll(ctx context.Context, collection string, values []json.RawMessage) error

	// Delete removes the document under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, collection, key string) error

	// Clear removes every document in the collection.
	Clear(ctx context.Context, collection string) error

	// Enqueue appends item to the mutation queue, assigning its ID and
	// forcing status pending with zero retries.
	Enqueue(ctx context.Context, item *types.QueueItem) error

	// Pending returns all pending queue items in FIFO order by ID.
	Pending(ctx context.Context) ([]types.QueueItem, error)

	// QueueItems returns all queue items with the given status, FIFO.
	QueueItems(ctx context.Context, status types.Status) ([]types.QueueItem, error)

	// UpdateQueueItem applies patch to the item with the given ID.
	UpdateQueueItem(ctx context.Context, id int64, patch QueuePatch) error

	// PruneQueue deletes items with the given status finished before the
	// cutoff, returning how many were removed.
	PruneQueue(ctx context.Context, status types.Status, before time.Time) (int, error)

	// Close releases the underlying medium.
	Close() error
}

// Sentinel failure conditions. Callers are expected to treat all of these
// as non-fatal and degrade (see the cache and syncqueue packages).
var (
	ErrNotFound          = errors.New("record not found")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrStoreClosed       = errors.New("store is closed")
	ErrQueueItemNotFound = errors.New("queue item not found")
)

// StorageError wraps a failed store operation with its context.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, collection string, err error) error {
	return &StorageError{Op: op, Collection: collection, Err: err}
}

// documentKey extracts the primary key value at keyPath from a JSON
// document.
func documentKey(keyPath string, doc json.RawMessage) (string, error) {
	key, ok := documentField(keyPath, doc)
	if !ok || key == "" {
		return "", fmt.Errorf("document has no %q field", keyPath)
	}
	return key, nil
}

// documentField extracts a top-level field from a JSON document as a
// string. Numeric values are rendered without a trailing exponent so they
// remain stable keys.
func documentField(field string, doc json.RawMessage) (string, bool) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return "", false
	}
	v, ok := m[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
