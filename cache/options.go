package cache

import (
	"errors"
	"time"

	"github.com/huykn/offline-sync/store"
)

// Default freshness windows. Expired data should not be served without a
// refresh; stale data is still served but should trigger a background
// refresh.
const (
	DefaultTTL            = 24 * time.Hour
	DefaultStaleThreshold = 5 * time.Minute
)

// LocalCacheConfig configures the hot cache.
type LocalCacheConfig struct {
	// NumCounters is the number of counters for the cache (Ristretto only).
	// Recommended: 10 * the expected number of live records.
	NumCounters int64

	// MaxCost is the maximum cost of items in the cache (Ristretto only).
	MaxCost int64

	// BufferItems is the number of items to buffer before eviction
	// (Ristretto only).
	BufferItems int64

	// IgnoreInternalCost ignores the internal cost of items (Ristretto
	// only).
	IgnoreInternalCost bool

	// MaxSize is the maximum number of items in the cache (LRU only).
	MaxSize int
}

// DefaultLocalCacheConfig returns hot cache defaults sized for a client
// working set.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return LocalCacheConfig{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64MB
		BufferItems: 64,
		MaxSize:     4096,
	}
}

// Options configures a cache Service for one entity type.
type Options[T any] struct {
	// EntityType names the entity this service caches (e.g. "patients").
	// Used for slot names and log context.
	EntityType string

	// Collection is the target collection in the durable store.
	Collection string

	// SchemaVersion is the compiled-in record schema version. A cached
	// epoch written under a different version is treated as absent.
	SchemaVersion int

	// Key extracts the primary key from a record.
	Key func(record T) string

	// TTL is how long a cached epoch stays valid. Defaults to DefaultTTL.
	TTL time.Duration

	// StaleThreshold is the shorter window after which still-valid data
	// should trigger a background refresh. Defaults to
	// DefaultStaleThreshold.
	StaleThreshold time.Duration

	// Store is the durable local store.
	Store store.Store

	// Slots holds the metadata slot. Defaults to an in-process
	// MemorySlots.
	Slots SlotStore

	// BackupSlots, when set, enables the emergency backup: a flat copy of
	// the collection overwritten on every successful save and used as a
	// last-resort read path.
	BackupSlots SlotStore

	// LocalCacheConfig configures the hot cache.
	LocalCacheConfig LocalCacheConfig

	// LocalCacheFactory creates the hot cache. Defaults to Ristretto.
	LocalCacheFactory LocalCacheFactory

	// Marshaller serializes records. Defaults to JSON.
	Marshaller Marshaller

	// Logger receives cache logs. Defaults to no-op.
	Logger Logger

	// DebugMode enables per-operation debug logging.
	DebugMode bool

	// Now returns the current time. Defaults to time.Now. Injected by
	// tests to control expiry.
	Now func() time.Time

	// OnError is called when a storage error is swallowed.
	OnError func(error)
}

// DefaultOptions returns options for one entity type with library
// defaults.
func DefaultOptions[T any](entityType, collection string, st store.Store, key func(record T) string) Options[T] {
	return Options[T]{
		EntityType:       entityType,
		Collection:       collection,
		SchemaVersion:    1,
		Key:              key,
		TTL:              DefaultTTL,
		StaleThreshold:   DefaultStaleThreshold,
		Store:            st,
		LocalCacheConfig: DefaultLocalCacheConfig(),
	}
}

// ErrInvalidOptions is returned when service options are invalid.
var ErrInvalidOptions = errors.New("invalid cache options")

// ErrServiceClosed is returned when operations are performed on a closed
// service.
var ErrServiceClosed = errors.New("cache service is closed")

// Validate validates the options.
func (o *Options[T]) Validate() error {
	if o.EntityType == "" {
		return ErrInvalidOptions
	}
	if o.Collection == "" {
		return ErrInvalidOptions
	}
	if o.SchemaVersion <= 0 {
		return ErrInvalidOptions
	}
	if o.Key == nil {
		return ErrInvalidOptions
	}
	if o.Store == nil {
		return ErrInvalidOptions
	}
	if o.TTL < 0 || o.StaleThreshold < 0 {
		return ErrInvalidOptions
	}
	return nil
}
