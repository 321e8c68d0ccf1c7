package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/huykn/offline-sync/types"
)

// Memory is an in-memory Store for tests and hosts that do not need
// durability. It honors the same contract as SQLite, including unit
// semantics for batch writes and FIFO queue ordering.
type Memory struct {
	mu          sync.RWMutex
	schema      map[string]Collection
	collections map[string]map[string]json.RawMessage
	queue       []types.QueueItem
	nextID      int64
	closed      bool
	now         func() time.Time
}

// NewMemory creates an in-memory store for the given schema.
func NewMemory(schema Schema) (*Memory, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	byName := schema.byName()
	collections := make(map[string]map[string]json.RawMessage, len(byName))
	for name := range byName {
		collections[name] = make(map[string]json.RawMessage)
	}
	return &Memory{
		schema:      byName,
		collections: collections,
		nextID:      1,
		now:         time.Now,
	}, nil
}

// Init is a no-op; the schema is set up at construction.
func (m *Memory) Init(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return storageErr("init", "", ErrStoreClosed)
	}
	return nil
}

func (m *Memory) locked(op, name string) (Collection, map[string]json.RawMessage, error) {
	if m.closed {
		return Collection{}, nil, storageErr(op, name, ErrStoreClosed)
	}
	c, ok := m.schema[name]
	if !ok {
		return Collection{}, nil, storageErr(op, name, ErrUnknownCollection)
	}
	return c, m.collections[name], nil
}

// Get returns the document stored under key, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, docs, err := m.locked("get", collection)
	if err != nil {
		return nil, err
	}
	doc, ok := docs[key]
	if !ok {
		return nil, storageErr("get", collection, ErrNotFound)
	}
	return append(json.RawMessage(nil), doc...), nil
}

// GetAll returns every document in the collection, ordered by key.
func (m *Memory) GetAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, docs, err := m.locked("get all", collection)
	if err != nil {
		return nil, err
	}
	return sortedDocs(docs, nil), nil
}

// GetAllByIndex returns documents whose declared index field equals value.
func (m *Memory) GetAllByIndex(ctx context.Context, collection, index, value string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, docs, err := m.locked("get by index", collection)
	if err != nil {
		return nil, err
	}
	var field string
	for _, idx := range c.Indexes {
		if idx.Name == index {
			field = idx.Field
			break
		}
	}
	if field == "" {
		return nil, storageErr("get by index", collection,
			fmt.Errorf("unknown index %q", index))
	}
	return sortedDocs(docs, func(doc json.RawMessage) bool {
		v, ok := documentField(field, doc)
		return ok && v == value
	}), nil
}

// Put upserts a single document.
func (m *Memory) Put(ctx context.Context, collection string, value json.RawMessage) error {
	return m.PutAll(ctx, collection, []json.RawMessage{value})
}

// PutAll upserts a batch; keys are validated up front so the batch lands as
// a unit.
func (m *Memory) PutAll(ctx context.Context, collection string, values []json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, docs, err := m.locked("put", collection)
	if err != nil {
		return err
	}
	keyed, err := keyDocs(c, values)
	if err != nil {
		return storageErr("put", collection, err)
	}
	for key, doc := range keyed {
		docs[key] = doc
	}
	return nil
}

// ReplaceAll atomically swaps the collection's contents for values.
func (m *Memory) ReplaceAll(ctx context.Context, collection string, values []json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, _, err := m.locked("replace", collection)
	if err != nil {
		return err
	}
	keyed, err := keyDocs(c, values)
	if err != nil {
		return storageErr("replace", collection, err)
	}
	m.collections[collection] = keyed
	return nil
}

// Delete removes the document under key.
func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, docs, err := m.locked("delete", collection)
	if err != nil {
		return err
	}
	delete(docs, key)
	return nil
}

// Clear removes every document in the collection.
func (m *Memory) Clear(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, _, err := m.locked("clear", collection); err != nil {
		return err
	}
	m.collections[collection] = make(map[string]json.RawMessage)
	return nil
}

// Enqueue appends item to the mutation queue, assigning its ID.
func (m *Memory) Enqueue(ctx context.Context, item *types.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storageErr("enqueue", QueueCollection, ErrStoreClosed)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = m.now().UTC()
	}
	item.ID = m.nextID
	m.nextID++
	item.Status = types.StatusPending
	item.RetryCount = 0
	stored := *item
	stored.Data = append(json.RawMessage(nil), item.Data...)
	m.queue = append(m.queue, stored)
	return nil
}

// Pending returns all pending queue items in FIFO order by ID.
func (m *Memory) Pending(ctx context.Context) ([]types.QueueItem, error) {
	return m.QueueItems(ctx, types.StatusPending)
}

// QueueItems returns all queue items with the given status, FIFO by ID.
func (m *Memory) QueueItems(ctx context.Context, status types.Status) ([]types.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, storageErr("queue items", QueueCollection, ErrStoreClosed)
	}
	var items []types.QueueItem
	for _, item := range m.queue {
		if item.Status == status {
			items = append(items, item)
		}
	}
	return items, nil
}

// UpdateQueueItem applies patch to the item with the given ID.
func (m *Memory) UpdateQueueItem(ctx context.Context, id int64, patch QueuePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storageErr("update queue item", QueueCollection, ErrStoreClosed)
	}
	for i := range m.queue {
		if m.queue[i].ID != id {
			continue
		}
		if patch.Status != nil {
			m.queue[i].Status = *patch.Status
		}
		if patch.RetryCount != nil {
			m.queue[i].RetryCount = *patch.RetryCount
		}
		if patch.LastRetryAt != nil {
			t := *patch.LastRetryAt
			m.queue[i].LastRetryAt = &t
		}
		if patch.ErrorMessage != nil {
			m.queue[i].ErrorMessage = *patch.ErrorMessage
		}
		if patch.CompletedAt != nil {
			t := *patch.CompletedAt
			m.queue[i].CompletedAt = &t
		}
		return nil
	}
	return storageErr("update queue item", QueueCollection, ErrQueueItemNotFound)
}

// PruneQueue deletes items with the given status finished before the
// cutoff.
func (m *Memory) PruneQueue(ctx context.Context, status types.Status, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, storageErr("prune queue", QueueCollection, ErrStoreClosed)
	}
	kept := m.queue[:0]
	removed := 0
	for _, item := range m.queue {
		finished := item.CreatedAt
		if item.LastRetryAt != nil {
			finished = *item.LastRetryAt
		}
		if item.CompletedAt != nil {
			finished = *item.CompletedAt
		}
		if item.Status == status && finished.Before(before) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	m.queue = kept
	return removed, nil
}

// Close marks the store closed; further operations fail with
// ErrStoreClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func keyDocs(c Collection, values []json.RawMessage) (map[string]json.RawMessage, error) {
	keyed := make(map[string]json.RawMessage, len(values))
	for _, value := range values {
		key, err := documentKey(c.KeyPath, value)
		if err != nil {
			return nil, err
		}
		keyed[key] = append(json.RawMessage(nil), value...)
	}
	return keyed, nil
}

func sortedDocs(docs map[string]json.RawMessage, keep func(json.RawMessage) bool) []json.RawMessage {
	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var out []json.RawMessage
	for _, key := range keys {
		doc := docs[key]
		if keep != nil && !keep(doc) {
			continue
		}
		out = append(out, append(json.RawMessage(nil), doc...))
	}
	return out
}
