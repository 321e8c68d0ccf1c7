// Package cache turns a raw store collection into a per-entity cache with
// explicit freshness semantics: TTL expiration, staleness hints, tenant
// scoping, schema-version invalidation and an optional emergency backup.
package cache

// Logger defines the interface for logging in the offline-sync library.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)
}

// Marshaller defines the interface for serializing cached records.
type Marshaller interface {
	// Marshal serializes a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes a value from bytes.
	Unmarshal(data []byte, v any) error
}

// LocalCache is the in-process hot cache kept in front of the durable
// store, so repeated single-record reads skip the store round trip.
type LocalCache interface {
	// Get retrieves a value from the hot cache.
	Get(key string) (any, bool)

	// Set stores a value in the hot cache.
	Set(key string, value any, cost int64) bool

	// Delete removes a value from the hot cache.
	Delete(key string)

	// Clear removes all values from the hot cache.
	Clear()

	// Close closes the hot cache.
	Close()

	// Metrics returns hot cache metrics.
	Metrics() LocalCacheMetrics
}

// LocalCacheMetrics represents hot cache metrics.
type LocalCacheMetrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// LocalCacheFactory creates hot cache instances.
type LocalCacheFactory interface {
	// Create creates a new hot cache instance.
	Create() (LocalCache, error)
}

// SlotStore is a small synchronous named-slot store used for cache
// metadata and emergency backups. It lives outside the durable store so a
// validity check never awaits an I/O round trip.
type SlotStore interface {
	// Get returns the bytes stored under name.
	Get(name string) ([]byte, bool)

	// Set stores value under name, overwriting any previous value.
	Set(name string, value []byte) error

	// Delete removes the slot.
	Delete(name string)
}
