package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/huykn/offline-sync/store"
	"github.com/huykn/offline-sync/types"
)

// Result is what a cache read returns. Expired does not imply the records
// were deleted; the caller decides whether expired data is still worth
// serving (e.g. during an outage). Stale is a hint to refresh in the
// background without blocking.
type Result[T any] struct {
	Data     []T
	Metadata *types.Metadata
	Expired  bool
	Stale    bool
}

// Backup is the emergency copy of a collection kept in a flat slot,
// overwritten wholesale on every successful save. It is always treated as
// stale when served.
type Backup[T any] struct {
	Data      []T       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// Stats represents cache statistics.
type Stats struct {
	LocalHits   int64
	LocalMisses int64
	StoreHits   int64
	StoreMisses int64
	BackupHits  int64
}

// Service caches one entity type's collection with freshness semantics and
// tenant isolation. It is the collection's single writer; no other
// component may write to it.
//
// Storage errors never escape this layer: reads degrade to an empty result
// (or the emergency backup) and single-record writes degrade to no-ops,
// with a log entry either way.
type Service[T any] struct {
	opts   Options[T]
	local  LocalCache
	closed int32
	stats  Stats
}

// NewService creates a cache service for one entity type.
func NewService[T any](opts Options[T]) (*Service[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.StaleThreshold == 0 {
		opts.StaleThreshold = DefaultStaleThreshold
	}
	if opts.LocalCacheFactory == nil {
		opts.LocalCacheFactory = NewRistrettoFactory(opts.LocalCacheConfig)
	}
	if opts.Marshaller == nil {
		opts.Marshaller = NewJSONMarshaller()
	}
	if opts.Logger == nil {
		opts.Logger = NewNoOpLogger()
	}
	if opts.Slots == nil {
		opts.Slots = NewMemorySlots()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	local, err := opts.LocalCacheFactory.Create()
	if err != nil {
		return nil, err
	}
	return &Service[T]{opts: opts, local: local}, nil
}

// SaveToCache replaces the cached epoch with records for the given tenant
// using the configured TTL.
func (s *Service[T]) SaveToCache(ctx context.Context, records []T, tenantID string) error {
	return s.SaveToCacheTTL(ctx, records, tenantID, s.opts.TTL)
}

// SaveToCacheTTL replaces the cached epoch with records, valid for ttl.
// The store write happens in one transaction and metadata is committed
// only after it succeeds, so readers never observe a new epoch's metadata
// over the old epoch's rows.
func (s *Service[T]) SaveToCacheTTL(ctx context.Context, records []T, tenantID string, ttl time.Duration) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ErrServiceClosed
	}
	blobs := make([]json.RawMessage, 0, len(records))
	for _, record := range records {
		blob, err := s.opts.Marshaller.Marshal(record)
		if err != nil {
			s.fail(err)
			return err
		}
		blobs = append(blobs, blob)
	}
	if err := s.opts.Store.ReplaceAll(ctx, s.opts.Collection, blobs); err != nil {
		s.opts.Logger.Error("save: store write failed",
			"entity", s.opts.EntityType, "error", err)
		s.fail(err)
		return err
	}

	now := s.opts.Now()
	s.writeMetadata(types.Metadata{
		LastUpdated:   now,
		Count:         len(records),
		TenantID:      tenantID,
		SchemaVersion: s.opts.SchemaVersion,
		ExpiresAt:     now.Add(ttl),
	})
	s.local.Clear()
	s.writeBackup(records, now)

	if s.opts.DebugMode {
		s.opts.Logger.Debug("save: cached epoch written",
			"entity", s.opts.EntityType, "count", len(records), "tenant", tenantID)
	}
	return nil
}

// GetFromCache returns the cached records for the given tenant. Absent
// metadata, a schema version mismatch or a tenant mismatch all yield an
// empty result marked expired and stale.
func (s *Service[T]) GetFromCache(ctx context.Context, tenantID string) Result[T] {
	miss := Result[T]{Expired: true, Stale: true}
	if atomic.LoadInt32(&s.closed) != 0 {
		return miss
	}
	meta, ok := s.metadata()
	if !ok {
		if s.opts.DebugMode {
			s.opts.Logger.Debug("get: no cache metadata", "entity", s.opts.EntityType)
		}
		return miss
	}
	if meta.SchemaVersion != s.opts.SchemaVersion {
		s.opts.Logger.Warn("get: cache schema version changed, clearing",
			"entity", s.opts.EntityType,
			"cached", meta.SchemaVersion, "current", s.opts.SchemaVersion)
		_ = s.ClearCache(ctx)
		return miss
	}
	if meta.TenantID != tenantID {
		if s.opts.DebugMode {
			s.opts.Logger.Debug("get: cached tenant does not match",
				"entity", s.opts.EntityType, "requested", tenantID)
		}
		return miss
	}

	now := s.opts.Now()
	expired := now.After(meta.ExpiresAt)
	stale := now.Sub(meta.LastUpdated) > s.opts.StaleThreshold

	blobs, err := s.opts.Store.GetAll(ctx, s.opts.Collection)
	if err != nil || (len(blobs) == 0 && meta.Count > 0) {
		if err != nil {
			s.opts.Logger.Warn("get: store read failed, trying backup",
				"entity", s.opts.EntityType, "error", err)
			s.fail(err)
		}
		atomic.AddInt64(&s.stats.StoreMisses, 1)
		if backup, ok := s.readBackup(); ok {
			atomic.AddInt64(&s.stats.BackupHits, 1)
			// The backup is better than nothing but never fresh.
			return Result[T]{Data: backup.Data, Metadata: &meta, Expired: expired, Stale: true}
		}
		return miss
	}
	atomic.AddInt64(&s.stats.StoreHits, 1)

	data := make([]T, 0, len(blobs))
	for _, blob := range blobs {
		var record T
		if err := s.opts.Marshaller.Unmarshal(blob, &record); err != nil {
			s.opts.Logger.Warn("get: skipping undecodable record",
				"entity", s.opts.EntityType, "error", err)
			continue
		}
		data = append(data, record)
	}
	return Result[T]{Data: data, Metadata: &meta, Expired: expired, Stale: stale}
}

// HasValidCache is the synchronous, metadata-only validity check: version
// and tenant match, not expired, and at least one record.
func (s *Service[T]) HasValidCache(tenantID string) bool {
	if atomic.LoadInt32(&s.closed) != 0 {
		return false
	}
	meta, ok := s.metadata()
	return ok &&
		meta.SchemaVersion == s.opts.SchemaVersion &&
		meta.TenantID == tenantID &&
		meta.Count > 0 &&
		!s.opts.Now().After(meta.ExpiresAt)
}

// ClearCache wipes the collection, the metadata slot and the hot cache.
func (s *Service[T]) ClearCache(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ErrServiceClosed
	}
	if err := s.opts.Store.Clear(ctx, s.opts.Collection); err != nil {
		s.opts.Logger.Warn("clear: store clear failed",
			"entity", s.opts.EntityType, "error", err)
		s.fail(err)
	}
	s.opts.Slots.Delete(s.metaSlot())
	s.local.Clear()
	return nil
}

// GetByID returns a single cached record, reading through the hot cache.
// Validity is gated on the metadata the same way GetFromCache is.
func (s *Service[T]) GetByID(ctx context.Context, id, tenantID string) (T, bool) {
	var zero T
	if atomic.LoadInt32(&s.closed) != 0 {
		return zero, false
	}
	meta, ok := s.metadata()
	if !ok || meta.SchemaVersion != s.opts.SchemaVersion || meta.TenantID != tenantID {
		return zero, false
	}
	if v, ok := s.local.Get(id); ok {
		if record, ok := v.(T); ok {
			atomic.AddInt64(&s.stats.LocalHits, 1)
			return record, true
		}
	}
	atomic.AddInt64(&s.stats.LocalMisses, 1)

	blob, err := s.opts.Store.Get(ctx, s.opts.Collection, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.opts.Logger.Warn("get by id: store read failed",
				"entity", s.opts.EntityType, "id", id, "error", err)
			s.fail(err)
		}
		atomic.AddInt64(&s.stats.StoreMisses, 1)
		return zero, false
	}
	atomic.AddInt64(&s.stats.StoreHits, 1)

	var record T
	if err := s.opts.Marshaller.Unmarshal(blob, &record); err != nil {
		s.opts.Logger.Warn("get by id: undecodable record",
			"entity", s.opts.EntityType, "id", id, "error", err)
		return zero, false
	}
	s.local.Set(id, record, 1)
	return record, true
}

// Upsert writes a single record without a full save cycle, adjusting the
// metadata count in place. Count stays advisory: after many single-record
// ops it may drift, which is acceptable because nothing load-bearing reads
// it.
func (s *Service[T]) Upsert(ctx context.Context, record T, tenantID string) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ErrServiceClosed
	}
	key := s.opts.Key(record)
	blob, err := s.opts.Marshaller.Marshal(record)
	if err != nil {
		s.fail(err)
		return err
	}
	_, getErr := s.opts.Store.Get(ctx, s.opts.Collection, key)
	existed := getErr == nil

	if err := s.opts.Store.Put(ctx, s.opts.Collection, blob); err != nil {
		s.opts.Logger.Warn("upsert: store write failed",
			"entity", s.opts.EntityType, "id", key, "error", err)
		s.fail(err)
		return nil
	}
	s.local.Set(key, record, 1)

	if meta, ok := s.metadata(); ok &&
		meta.SchemaVersion == s.opts.SchemaVersion && meta.TenantID == tenantID {
		if !existed {
			meta.Count++
		}
		meta.LastUpdated = s.opts.Now()
		s.writeMetadata(meta)
	}
	return nil
}

// Remove deletes a single record, adjusting the metadata count in place.
func (s *Service[T]) Remove(ctx context.Context, id string) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ErrServiceClosed
	}
	if err := s.opts.Store.Delete(ctx, s.opts.Collection, id); err != nil {
		s.opts.Logger.Warn("remove: store delete failed",
			"entity", s.opts.EntityType, "id", id, "error", err)
		s.fail(err)
		return nil
	}
	s.local.Delete(id)

	if meta, ok := s.metadata(); ok && meta.Count > 0 {
		meta.Count--
		meta.LastUpdated = s.opts.Now()
		s.writeMetadata(meta)
	}
	return nil
}

// Stats returns cache statistics.
func (s *Service[T]) Stats() Stats {
	return Stats{
		LocalHits:   atomic.LoadInt64(&s.stats.LocalHits),
		LocalMisses: atomic.LoadInt64(&s.stats.LocalMisses),
		StoreHits:   atomic.LoadInt64(&s.stats.StoreHits),
		StoreMisses: atomic.LoadInt64(&s.stats.StoreMisses),
		BackupHits:  atomic.LoadInt64(&s.stats.BackupHits),
	}
}

// Close releases the hot cache. The durable store is shared and stays
// open.
func (s *Service[T]) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.local.Close()
	return nil
}

func (s *Service[T]) metaSlot() string {
	return "cache_meta:" + s.opts.EntityType
}

func (s *Service[T]) backupSlot() string {
	return "cache_backup:" + s.opts.EntityType
}

func (s *Service[T]) metadata() (types.Metadata, bool) {
	raw, ok := s.opts.Slots.Get(s.metaSlot())
	if !ok {
		return types.Metadata{}, false
	}
	var meta types.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.opts.Logger.Warn("metadata slot is corrupt",
			"entity", s.opts.EntityType, "error", err)
		return types.Metadata{}, false
	}
	return meta, true
}

func (s *Service[T]) writeMetadata(meta types.Metadata) {
	raw, err := json.Marshal(meta)
	if err != nil {
		s.fail(err)
		return
	}
	if err := s.opts.Slots.Set(s.metaSlot(), raw); err != nil {
		s.opts.Logger.Warn("metadata slot write failed",
			"entity", s.opts.EntityType, "error", err)
		s.fail(err)
	}
}

func (s *Service[T]) writeBackup(records []T, now time.Time) {
	if s.opts.BackupSlots == nil {
		return
	}
	raw, err := json.Marshal(Backup[T]{Data: records, Timestamp: now, Count: len(records)})
	if err != nil {
		s.fail(err)
		return
	}
	if err := s.opts.BackupSlots.Set(s.backupSlot(), raw); err != nil {
		s.opts.Logger.Warn("backup slot write failed",
			"entity", s.opts.EntityType, "error", err)
		s.fail(err)
	}
}

func (s *Service[T]) readBackup() (Backup[T], bool) {
	if s.opts.BackupSlots == nil {
		return Backup[T]{}, false
	}
	raw, ok := s.opts.BackupSlots.Get(s.backupSlot())
	if !ok {
		return Backup[T]{}, false
	}
	var backup Backup[T]
	if err := json.Unmarshal(raw, &backup); err != nil {
		s.opts.Logger.Warn("backup slot is corrupt",
			"entity", s.opts.EntityType, "error", err)
		return Backup[T]{}, false
	}
	return backup, true
}

func (s *Service[T]) fail(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}
