// Package offlinesync is an offline-first persistence and synchronization
// layer: a durable local store with named collections and indexes, typed
// cache services with TTL and staleness semantics on top of it, and a
// sync manager that queues local mutations while offline and replays them
// against a remote backend when connectivity returns.
package offlinesync

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/huykn/offline-sync/connectivity"
	"github.com/huykn/offline-sync/remote"
	"github.com/huykn/offline-sync/store"
	"github.com/huykn/offline-sync/syncqueue"
)

// Config configures an offline-sync client.
type Config struct {
	// StorePath is the SQLite database file backing the local store.
	StorePath string `env:"OFFLINE_SYNC_STORE_PATH"`

	// Schema declares the collections and indexes of the local store.
	Schema store.Schema

	// RedisAddr is the remote backend address (e.g., "localhost:6379").
	RedisAddr string `env:"OFFLINE_SYNC_REDIS_ADDR"`

	// RedisPassword is the optional backend password.
	RedisPassword string `env:"OFFLINE_SYNC_REDIS_PASSWORD"`

	// RedisDB is the backend database number.
	RedisDB int `env:"OFFLINE_SYNC_REDIS_DB"`

	// ClientID identifies this client instance in logs.
	// If empty, a random UUID is generated.
	ClientID string `env:"OFFLINE_SYNC_CLIENT_ID"`

	// MaxRetries caps replay attempts per queued mutation.
	MaxRetries int `env:"OFFLINE_SYNC_MAX_RETRIES"`

	// ContextTimeout bounds each remote call during replay.
	ContextTimeout time.Duration `env:"OFFLINE_SYNC_CONTEXT_TIMEOUT"`

	// ProbeInterval is the connectivity probe cadence while online.
	ProbeInterval time.Duration `env:"OFFLINE_SYNC_PROBE_INTERVAL"`

	// Logger receives client logs.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool `env:"OFFLINE_SYNC_DEBUG"`

	// OnError is called when an error occurs in background operations.
	OnError func(error)
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		StorePath:      "offline-sync.db",
		RedisAddr:      "localhost:6379",
		RedisDB:        0,
		MaxRetries:     syncqueue.DefaultMaxRetries,
		ContextTimeout: 10 * time.Second,
		ProbeInterval:  30 * time.Second,
		Logger:         nil, // Will default to no-op in New()
		DebugMode:      false,
	}
}

// ConfigFromEnv returns the default configuration overridden by
// OFFLINE_SYNC_* environment variables. The schema still has to be set in
// code.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StorePath == "" || c.RedisAddr == "" {
		return ErrInvalidConfig
	}
	if c.MaxRetries < 0 || c.ContextTimeout < 0 || c.ProbeInterval < 0 {
		return ErrInvalidConfig
	}
	return c.Schema.Validate()
}

// Client wires the store, the remote backend, the connectivity watcher
// and the sync manager together. Typed cache services are created
// separately with cache.NewService against Client.Store().
type Client struct {
	store   *store.SQLite
	backend *remote.RedisBackend
	watcher *connectivity.Watcher
	manager *syncqueue.Manager
}

// New creates an offline-sync client: it opens and initializes the local
// store, connects the Redis backend, starts the connectivity watcher with
// the backend's ping as its probe, and creates the sync manager.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.OpenSQLite(cfg.StorePath, cfg.Schema)
	if err != nil {
		return nil, err
	}
	if err := st.Init(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	backend, err := remote.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		st.Close()
		return nil, err
	}

	watcher, err := connectivity.NewWatcher(connectivity.WatcherOptions{
		Probe:    backend.Ping,
		Interval: cfg.ProbeInterval,
		Logger:   cfg.Logger,
	})
	if err != nil {
		backend.Close()
		st.Close()
		return nil, err
	}

	opts := syncqueue.DefaultOptions(st, backend, watcher)
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.ContextTimeout > 0 {
		opts.ContextTimeout = cfg.ContextTimeout
	}
	if cfg.ClientID != "" {
		opts.ClientID = cfg.ClientID
	}
	if cfg.Logger != nil {
		opts.Logger = cfg.Logger
	}
	opts.DebugMode = cfg.DebugMode
	opts.OnError = cfg.OnError

	manager, err := syncqueue.New(opts)
	if err != nil {
		watcher.Close()
		backend.Close()
		st.Close()
		return nil, err
	}

	watcher.Start()

	return &Client{
		store:   st,
		backend: backend,
		watcher: watcher,
		manager: manager,
	}, nil
}

// Store returns the local store, for wiring cache services.
func (c *Client) Store() *store.SQLite {
	return c.store
}

// Backend returns the remote backend.
func (c *Client) Backend() *remote.RedisBackend {
	return c.backend
}

// Watcher returns the connectivity watcher.
func (c *Client) Watcher() *connectivity.Watcher {
	return c.watcher
}

// Manager returns the sync manager.
func (c *Client) Manager() *syncqueue.Manager {
	return c.manager
}

// Close shuts down the client: the manager first so in-flight replay
// finishes, then the watcher, the backend and the store. The first error
// is returned.
func (c *Client) Close() error {
	var first error
	if err := c.manager.Close(); err != nil && first == nil {
		first = err
	}
	if err := c.watcher.Close(); err != nil && first == nil {
		first = err
	}
	if err := c.backend.Close(); err != nil && first == nil {
		first = err
	}
	if err := c.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
