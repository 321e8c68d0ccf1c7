package syncqueue

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/huykn/offline-sync/cache"
	"github.com/huykn/offline-sync/connectivity"
	"github.com/huykn/offline-sync/remote"
	"github.com/huykn/offline-sync/store"
)

// DefaultMaxRetries is how many attempts an item gets before it is parked
// as failed.
const DefaultMaxRetries = 3

// Options configures a sync Manager.
type Options struct {
	// Store is the durable store owning the mutation queue.
	Store store.Store

	// Backend is the remote service mutations are replayed against.
	Backend remote.Backend

	// Signal is the connectivity source. The manager subscribes at
	// construction and flushes the queue on every offline-to-online
	// transition.
	Signal connectivity.Signal

	// MaxRetries caps attempts per item. Defaults to DefaultMaxRetries.
	MaxRetries int

	// ContextTimeout bounds each remote call during replay. A timed-out
	// call counts as a normal failure and consumes a retry. Zero means no
	// per-item bound.
	ContextTimeout time.Duration

	// PrefetchLimit caps concurrent fetches in CacheCriticalData.
	// Defaults to 4.
	PrefetchLimit int

	// ClientID identifies this client instance in logs. Defaults to a
	// random UUID.
	ClientID string

	// Logger receives manager logs. Defaults to no-op.
	Logger cache.Logger

	// DebugMode enables per-item debug logging.
	DebugMode bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OnError is called when a storage error is swallowed during replay
	// bookkeeping.
	OnError func(error)
}

// DefaultOptions returns manager options with library defaults.
func DefaultOptions(st store.Store, backend remote.Backend, signal connectivity.Signal) Options {
	return Options{
		Store:          st,
		Backend:        backend,
		Signal:         signal,
		MaxRetries:     DefaultMaxRetries,
		ContextTimeout: 10 * time.Second,
		PrefetchLimit:  4,
		ClientID:       uuid.NewString(),
	}
}

// ErrInvalidOptions is returned when manager options are invalid.
var ErrInvalidOptions = errors.New("invalid sync manager options")

// Validate validates the options.
func (o *Options) Validate() error {
	if o.Store == nil || o.Backend == nil || o.Signal == nil {
		return ErrInvalidOptions
	}
	if o.MaxRetries < 0 || o.PrefetchLimit < 0 || o.ContextTimeout < 0 {
		return ErrInvalidOptions
	}
	return nil
}
