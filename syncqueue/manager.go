// Package syncqueue owns the durable mutation queue and the replay loop
// that drains it against the remote backend with bounded retries, FIFO
// ordering and listener notification.
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/huykn/offline-sync/cache"
	"github.com/huykn/offline-sync/remote"
	"github.com/huykn/offline-sync/store"
	"github.com/huykn/offline-sync/types"
)

// Immediate-return results from Sync. Their messages appear in the
// SyncResult's Errors so callers and listeners can tell the passes apart.
var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOffline        = errors.New("no network connection")
	ErrManagerClosed  = errors.New("sync manager is closed")
)

// Manager queues local mutations durably and replays them when online.
// Writes queued while disconnected survive restarts; a mutation is only
// dropped after it completes remotely or exhausts its retries and is
// parked as failed.
//
// Delivery is at-least-once: a mutation that succeeded remotely but whose
// local bookkeeping failed will be replayed.
type Manager struct {
	opts     Options
	syncing  int32
	closed   int32
	lastSync int64 // unix millis

	mu           sync.Mutex
	listeners    map[int]func(types.SyncResult)
	nextListener int

	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates a sync manager and subscribes it to the connectivity signal;
// every offline-to-online transition triggers a queue flush.
func New(opts Options) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.PrefetchLimit == 0 {
		opts.PrefetchLimit = 4
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = cache.NewNoOpLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		opts:      opts,
		listeners: make(map[int]func(types.SyncResult)),
	}
	m.unsubscribe = opts.Signal.OnChange(func(online bool) {
		if !online || atomic.LoadInt32(&m.closed) != 0 {
			return
		}
		if m.opts.DebugMode {
			m.opts.Logger.Debug("connectivity regained, flushing queue",
				"client", m.opts.ClientID)
		}
		m.syncInBackground()
	})
	return m, nil
}

func (m *Manager) fail(err error) {
	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}

func (m *Manager) syncInBackground() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Sync(context.Background())
	}()
}

// QueueOperation appends a mutation to the durable queue and, when online,
// triggers a best-effort background flush. The caller gets the assigned
// queue ID immediately; replay failures surface only through OnSync
// listeners.
func (m *Manager) QueueOperation(ctx context.Context, entityType string, action types.Action, collection string, data any) (int64, error) {
	if atomic.LoadInt32(&m.closed) != 0 {
		return 0, ErrManagerClosed
	}
	if !action.Valid() {
		return 0, fmt.Errorf("unknown action %q", action)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	item := &types.QueueItem{
		EntityType: entityType,
		Action:     action,
		Collection: collection,
		Data:       payload,
		CreatedAt:  m.opts.Now(),
	}
	if err := m.opts.Store.Enqueue(ctx, item); err != nil {
		m.opts.Logger.Error("queue: enqueue failed",
			"client", m.opts.ClientID, "entity", entityType, "error", err)
		m.fail(err)
		return 0, err
	}
	if m.opts.DebugMode {
		m.opts.Logger.Debug("queue: operation queued",
			"client", m.opts.ClientID, "id", item.ID,
			"entity", entityType, "action", action)
	}
	if m.opts.Signal.Online() {
		m.syncInBackground()
	}
	return item.ID, nil
}

// Sync drains all pending queue items in FIFO order by ID, strictly
// sequentially: later items may depend on entities created by earlier
// ones. A call while offline or while another pass is running returns
// immediately with an explanatory result instead of queuing a second pass.
func (m *Manager) Sync(ctx context.Context) types.SyncResult {
	if atomic.LoadInt32(&m.closed) != 0 {
		return types.SyncResult{Errors: []string{ErrManagerClosed.Error()}}
	}
	if !m.opts.Signal.Online() {
		return types.SyncResult{Errors: []string{ErrOffline.Error()}}
	}
	if !atomic.CompareAndSwapInt32(&m.syncing, 0, 1) {
		return types.SyncResult{Errors: []string{ErrSyncInProgress.Error()}}
	}
	defer atomic.StoreInt32(&m.syncing, 0)

	items, err := m.opts.Store.Pending(ctx)
	if err != nil {
		m.opts.Logger.Error("sync: reading pending queue failed",
			"client", m.opts.ClientID, "error", err)
		m.fail(err)
		result := types.SyncResult{Errors: []string{err.Error()}}
		m.notify(result)
		return result
	}

	result := types.SyncResult{Success: true}
	for i := range items {
		if err := m.process(ctx, &items[i]); err != nil {
			result.Success = false
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("item %d: %v", items[i].ID, err))
			continue
		}
		result.Synced++
	}
	atomic.StoreInt64(&m.lastSync, m.opts.Now().UnixMilli())

	if m.opts.DebugMode {
		m.opts.Logger.Debug("sync: pass finished",
			"client", m.opts.ClientID,
			"synced", result.Synced, "failed", result.Failed)
	}
	m.notify(result)
	return result
}

// process replays one item and records the outcome on it. The remote call
// gets its own bounded context; a timeout consumes a retry like any other
// failure.
func (m *Manager) process(ctx context.Context, item *types.QueueItem) error {
	op := remote.Operation{
		EntityType: item.EntityType,
		Action:     item.Action,
		Collection: item.Collection,
		Key:        keyFromPayload(item.Data),
		Data:       item.Data,
	}

	callCtx := ctx
	if m.opts.ContextTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.opts.ContextTimeout)
		defer cancel()
	}
	err := m.opts.Backend.Apply(callCtx, op)
	now := m.opts.Now()

	if err == nil {
		status := types.StatusCompleted
		patch := store.QueuePatch{Status: &status, CompletedAt: &now}
		if uerr := m.opts.Store.UpdateQueueItem(ctx, item.ID, patch); uerr != nil {
			// The mutation landed remotely; a bookkeeping failure means it
			// will be replayed. At-least-once, not exactly-once.
			m.opts.Logger.Warn("sync: completed item not marked",
				"client", m.opts.ClientID, "id", item.ID, "error", uerr)
			m.fail(uerr)
		}
		if m.opts.DebugMode {
			m.opts.Logger.Debug("sync: item completed",
				"client", m.opts.ClientID, "id", item.ID)
		}
		return nil
	}

	item.RetryCount++
	message := err.Error()
	patch := store.QueuePatch{
		RetryCount:   &item.RetryCount,
		LastRetryAt:  &now,
		ErrorMessage: &message,
	}
	if item.RetryCount >= m.opts.MaxRetries {
		status := types.StatusFailed
		patch.Status = &status
		m.opts.Logger.Error("sync: item failed permanently",
			"client", m.opts.ClientID, "id", item.ID,
			"attempts", item.RetryCount, "error", err)
	} else if m.opts.DebugMode {
		m.opts.Logger.Debug("sync: item will be retried",
			"client", m.opts.ClientID, "id", item.ID,
			"attempt", item.RetryCount, "error", err)
	}
	if uerr := m.opts.Store.UpdateQueueItem(ctx, item.ID, patch); uerr != nil {
		m.opts.Logger.Warn("sync: retry bookkeeping failed",
			"client", m.opts.ClientID, "id", item.ID, "error", uerr)
		m.fail(uerr)
	}
	return err
}

// OnSync registers a listener invoked once per completed replay pass with
// the aggregate result. The returned function unregisters it.
func (m *Manager) OnSync(callback func(types.SyncResult)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = callback
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) notify(result types.SyncResult) {
	m.mu.Lock()
	callbacks := make([]func(types.SyncResult), 0, len(m.listeners))
	for _, cb := range m.listeners {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(result)
	}
}

// Status returns a snapshot of the manager for UI surfaces.
func (m *Manager) Status(ctx context.Context) types.SyncStatus {
	status := types.SyncStatus{
		Online:  m.opts.Signal.Online(),
		Syncing: atomic.LoadInt32(&m.syncing) != 0,
	}
	if millis := atomic.LoadInt64(&m.lastSync); millis != 0 {
		status.LastSync = time.UnixMilli(millis)
	}
	pending, err := m.opts.Store.Pending(ctx)
	if err != nil {
		m.fail(err)
		return status
	}
	status.Pending = len(pending)
	return status
}

// FailedItems returns items parked as failed, awaiting operator
// intervention.
func (m *Manager) FailedItems(ctx context.Context) ([]types.QueueItem, error) {
	return m.opts.Store.QueueItems(ctx, types.StatusFailed)
}

// Requeue puts a failed item back in the pending queue with a fresh retry
// budget.
func (m *Manager) Requeue(ctx context.Context, id int64) error {
	status := types.StatusPending
	retries := 0
	message := ""
	return m.opts.Store.UpdateQueueItem(ctx, id, store.QueuePatch{
		Status:       &status,
		RetryCount:   &retries,
		ErrorMessage: &message,
	})
}

// PruneCompleted deletes completed items older than the given age,
// returning how many were removed.
func (m *Manager) PruneCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	return m.opts.Store.PruneQueue(ctx, types.StatusCompleted, m.opts.Now().Add(-olderThan))
}

// CriticalFetch names one collection to pre-warm and the remote fetch that
// produces its working set.
type CriticalFetch struct {
	Collection string
	Fetch      func(ctx context.Context) ([]json.RawMessage, error)
}

// CacheCriticalData pre-warms the store for offline availability by
// fetching bounded working sets and writing each into its collection in
// one transaction. This is a read-path prefetch, separate from the
// mutation queue.
func (m *Manager) CacheCriticalData(ctx context.Context, fetches []CriticalFetch) error {
	if atomic.LoadInt32(&m.closed) != 0 {
		return ErrManagerClosed
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.PrefetchLimit)
	for _, fetch := range fetches {
		g.Go(func() error {
			records, err := fetch.Fetch(gctx)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", fetch.Collection, err)
			}
			if err := m.opts.Store.ReplaceAll(gctx, fetch.Collection, records); err != nil {
				return fmt.Errorf("store %s: %w", fetch.Collection, err)
			}
			if m.opts.DebugMode {
				m.opts.Logger.Debug("prefetch: collection warmed",
					"client", m.opts.ClientID,
					"collection", fetch.Collection, "count", len(records))
			}
			return nil
		})
	}
	return g.Wait()
}

// Close unsubscribes from the connectivity signal and waits for any
// background flush to finish. Queued items stay durable for the next run.
func (m *Manager) Close() error {
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.wg.Wait()
	return nil
}

// keyFromPayload pulls the primary key out of a queued payload: either the
// payload is a bare key string (delete operations) or a document with an
// "id" field.
func keyFromPayload(data json.RawMessage) string {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		return key
	}
	var doc struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	switch v := doc.ID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
