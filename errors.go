package offlinesync

import (
	"errors"

	"github.com/huykn/offline-sync/cache"
	"github.com/huykn/offline-sync/store"
	"github.com/huykn/offline-sync/syncqueue"
)

// ErrInvalidConfig is returned when the client configuration is invalid.
var ErrInvalidConfig = errors.New("invalid offline-sync configuration")

// ErrNotFound is returned when a record is not found in a collection.
var ErrNotFound = store.ErrNotFound

// ErrUnknownCollection is returned for operations against a collection the
// schema does not declare.
var ErrUnknownCollection = store.ErrUnknownCollection

// ErrStoreClosed is returned when operations are performed on a closed store.
var ErrStoreClosed = store.ErrStoreClosed

// ErrServiceClosed is returned when operations are performed on a closed
// cache service.
var ErrServiceClosed = cache.ErrServiceClosed

// ErrSyncInProgress is reported when a sync pass is requested while one is
// already running.
var ErrSyncInProgress = syncqueue.ErrSyncInProgress

// ErrOffline is reported when a sync pass is requested without
// connectivity.
var ErrOffline = syncqueue.ErrOffline
