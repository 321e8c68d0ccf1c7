package offlinesync

import (
	"github.com/huykn/offline-sync/cache"
	"github.com/huykn/offline-sync/connectivity"
	"github.com/huykn/offline-sync/store"
	"github.com/huykn/offline-sync/types"
)

// Logger is an alias for cache.Logger.
type Logger = cache.Logger

// Marshaller is an alias for cache.Marshaller.
type Marshaller = cache.Marshaller

// LocalCache is an alias for cache.LocalCache.
type LocalCache = cache.LocalCache

// LocalCacheMetrics is an alias for cache.LocalCacheMetrics.
type LocalCacheMetrics = cache.LocalCacheMetrics

// LocalCacheFactory is an alias for cache.LocalCacheFactory.
type LocalCacheFactory = cache.LocalCacheFactory

// LocalCacheConfig is an alias for cache.LocalCacheConfig.
type LocalCacheConfig = cache.LocalCacheConfig

// SlotStore is an alias for cache.SlotStore.
type SlotStore = cache.SlotStore

// Store is an alias for store.Store.
type Store = store.Store

// Schema is an alias for store.Schema.
type Schema = store.Schema

// Collection is an alias for store.Collection.
type Collection = store.Collection

// Index is an alias for store.Index.
type Index = store.Index

// Signal is an alias for connectivity.Signal.
type Signal = connectivity.Signal

// Action is an alias for types.Action.
type Action = types.Action

// QueueItem is an alias for types.QueueItem.
type QueueItem = types.QueueItem

// Metadata is an alias for types.Metadata.
type Metadata = types.Metadata

// SyncResult is an alias for types.SyncResult.
type SyncResult = types.SyncResult

// SyncStatus is an alias for types.SyncStatus.
type SyncStatus = types.SyncStatus

// Action values re-exported for callers of the root package.
const (
	ActionCreate = types.ActionCreate
	ActionUpdate = types.ActionUpdate
	ActionDelete = types.ActionDelete
)

// DefaultLocalCacheConfig returns default local cache configuration for Ristretto.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return cache.DefaultLocalCacheConfig()
}
