package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/huykn/offline-sync/types"
)

// SQLite is the durable Store implementation backed by a single SQLite
// database file. All collections share one records table keyed by
// (collection, key); declared index fields are materialized into a side
// table at write time.
type SQLite struct {
	db     *sql.DB
	schema map[string]Collection
	group  singleflight.Group
	ready  atomic.Bool
	closed atomic.Bool
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path for the
// given schema. Init must still be called before use.
func OpenSQLite(path string, schema Schema) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLite{
		db:     db,
		schema: schema.byName(),
		now:    time.Now,
	}, nil
}

// Init creates the tables on first use. Concurrent callers share a single
// setup via singleflight; later calls are cheap no-ops.
func (s *SQLite) Init(ctx context.Context) error {
	if s.closed.Load() {
		return storageErr("init", "", ErrStoreClosed)
	}
	if s.ready.Load() {
		return nil
	}
	_, err, _ := s.group.Do("init", func() (any, error) {
		if s.ready.Load() {
			return nil, nil
		}
		if err := s.createTables(ctx); err != nil {
			return nil, err
		}
		s.ready.Store(true)
		return nil, nil
	})
	if err != nil {
		return storageErr("init", "", err)
	}
	return nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			data BLOB NOT NULL,
			cached_at INTEGER NOT NULL,
			PRIMARY KEY (collection, key)
		)`,
		`CREATE TABLE IF NOT EXISTS record_index (
			collection TEXT NOT NULL,
			idx TEXT NOT NULL,
			value TEXT NOT NULL,
			key TEXT NOT NULL,
			PRIMARY KEY (collection, idx, key)
		)`,
		`CREATE INDEX IF NOT EXISTS record_index_lookup
			ON record_index (collection, idx, value)`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			action TEXT NOT NULL,
			collection TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_retry_at INTEGER,
			error_message TEXT,
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS sync_queue_status ON sync_queue (status, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (s *SQLite) collection(op, name string) (Collection, error) {
	if s.closed.Load() {
		return Collection{}, storageErr(op, name, ErrStoreClosed)
	}
	c, ok := s.schema[name]
	if !ok {
		return Collection{}, storageErr(op, name, ErrUnknownCollection)
	}
	return c, nil
}

// Get returns the document stored under key, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	if _, err := s.collection("get", collection); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("get", collection, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get", collection, err)
	}
	return data, nil
}

// GetAll returns every document in the collection, ordered by key.
func (s *SQLite) GetAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	if _, err := s.collection("get all", collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE collection = ? ORDER BY key`,
		collection,
	)
	if err != nil {
		return nil, storageErr("get all", collection, err)
	}
	return scanDocs(rows, "get all", collection)
}

// GetAllByIndex returns documents whose declared index field equals value.
func (s *SQLite) GetAllByIndex(ctx context.Context, collection, index, value string) ([]json.RawMessage, error) {
	c, err := s.collection("get by index", collection)
	if err != nil {
		return nil, err
	}
	if !hasIndex(c, index) {
		return nil, storageErr("get by index", collection,
			fmt.Errorf("unknown index %q", index))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.data FROM records r
		 JOIN record_index i ON i.collection = r.collection AND i.key = r.key
		 WHERE r.collection = ? AND i.idx = ? AND i.value = ?
		 ORDER BY r.key`,
		collection, index, value,
	)
	if err != nil {
		return nil, storageErr("get by index", collection, err)
	}
	return scanDocs(rows, "get by index", collection)
}

// Put upserts a single document.
func (s *SQLite) Put(ctx context.Context, collection string, value json.RawMessage) error {
	return s.PutAll(ctx, collection, []json.RawMessage{value})
}

// PutAll upserts a batch inside one transaction.
func (s *SQLite) PutAll(ctx context.Context, collection string, values []json.RawMessage) error {
	c, err := s.collection("put", collection)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("put", collection, err)
	}
	if err := s.putTx(ctx, tx, c, values); err != nil {
		_ = tx.Rollback()
		return storageErr("put", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("put", collection, err)
	}
	return nil
}

// ReplaceAll atomically swaps the collection's contents for values.
func (s *SQLite) ReplaceAll(ctx context.Context, collection string, values []json.RawMessage) error {
	c, err := s.collection("replace", collection)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("replace", collection, err)
	}
	err = func() error {
		if err := clearTx(ctx, tx, collection); err != nil {
			return err
		}
		return s.putTx(ctx, tx, c, values)
	}()
	if err != nil {
		_ = tx.Rollback()
		return storageErr("replace", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("replace", collection, err)
	}
	return nil
}

func (s *SQLite) putTx(ctx context.Context, tx *sql.Tx, c Collection, values []json.RawMessage) error {
	cachedAt := s.now().UTC().UnixMilli()
	for _, value := range values {
		key, err := documentKey(c.KeyPath, value)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (collection, key, data, cached_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (collection, key)
			 DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at`,
			c.Name, key, []byte(value), cachedAt,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM record_index WHERE collection = ? AND key = ?`,
			c.Name, key,
		); err != nil {
			return err
		}
		for _, idx := range c.Indexes {
			fieldValue, ok := documentField(idx.Field, value)
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO record_index (collection, idx, value, key)
				 VALUES (?, ?, ?, ?)`,
				c.Name, idx.Name, fieldValue, key,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes the document under key.
func (s *SQLite) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.collection("delete", collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND key = ?`,
		collection, key,
	); err != nil {
		return storageErr("delete", collection, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM record_index WHERE collection = ? AND key = ?`,
		collection, key,
	); err != nil {
		return storageErr("delete", collection, err)
	}
	return nil
}

// Clear removes every document in the collection.
func (s *SQLite) Clear(ctx context.Context, collection string) error {
	if _, err := s.collection("clear", collection); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("clear", collection, err)
	}
	if err := clearTx(ctx, tx, collection); err != nil {
		_ = tx.Rollback()
		return storageErr("clear", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("clear", collection, err)
	}
	return nil
}

func clearTx(ctx context.Context, tx *sql.Tx, collection string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ?`, collection,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM record_index WHERE collection = ?`, collection)
	return err
}

// Enqueue appends item to the mutation queue, assigning its ID.
func (s *SQLite) Enqueue(ctx context.Context, item *types.QueueItem) error {
	if s.closed.Load() {
		return storageErr("enqueue", QueueCollection, ErrStoreClosed)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now().UTC()
	}
	item.Status = types.StatusPending
	item.RetryCount = 0
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue (entity_type, action, collection, data, created_at, status, retry_count)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		item.EntityType, string(item.Action), item.Collection, []byte(item.Data),
		item.CreatedAt.UnixMilli(), string(item.Status),
	)
	if err != nil {
		return storageErr("enqueue", QueueCollection, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("enqueue", QueueCollection, err)
	}
	item.ID = id
	return nil
}

// Pending returns all pending queue items in FIFO order by ID.
func (s *SQLite) Pending(ctx context.Context) ([]types.QueueItem, error) {
	return s.QueueItems(ctx, types.StatusPending)
}

// QueueItems returns all queue items with the given status, FIFO by ID.
func (s *SQLite) QueueItems(ctx context.Context, status types.Status) ([]types.QueueItem, error) {
	if s.closed.Load() {
		return nil, storageErr("queue items", QueueCollection, ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, action, collection, data, created_at, status,
		        retry_count, last_retry_at, error_message, completed_at
		 FROM sync_queue WHERE status = ? ORDER BY id`,
		string(status),
	)
	if err != nil {
		return nil, storageErr("queue items", QueueCollection, err)
	}
	defer rows.Close()

	var items []types.QueueItem
	for rows.Next() {
		var (
			item        types.QueueItem
			action      string
			status      string
			createdAt   int64
			lastRetryAt sql.NullInt64
			errMsg      sql.NullString
			completedAt sql.NullInt64
			data        []byte
		)
		if err := rows.Scan(&item.ID, &item.EntityType, &action, &item.Collection,
			&data, &createdAt, &status, &item.RetryCount,
			&lastRetryAt, &errMsg, &completedAt); err != nil {
			return nil, storageErr("queue items", QueueCollection, err)
		}
		item.Action = types.Action(action)
		item.Status = types.Status(status)
		item.Data = data
		item.CreatedAt = time.UnixMilli(createdAt).UTC()
		if lastRetryAt.Valid {
			t := time.UnixMilli(lastRetryAt.Int64).UTC()
			item.LastRetryAt = &t
		}
		if errMsg.Valid {
			item.ErrorMessage = errMsg.String
		}
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64).UTC()
			item.CompletedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("queue items", QueueCollection, err)
	}
	return items, nil
}

// UpdateQueueItem applies patch to the item with the given ID.
func (s *SQLite) UpdateQueueItem(ctx context.Context, id int64, patch QueuePatch) error {
	if s.closed.Load() {
		return storageErr("update queue item", QueueCollection, ErrStoreClosed)
	}
	var (
		sets []string
		args []any
	)
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *patch.RetryCount)
	}
	if patch.LastRetryAt != nil {
		sets = append(sets, "last_retry_at = ?")
		args = append(args, patch.LastRetryAt.UnixMilli())
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *patch.ErrorMessage)
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, patch.CompletedAt.UnixMilli())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return storageErr("update queue item", QueueCollection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update queue item", QueueCollection, err)
	}
	if n == 0 {
		return storageErr("update queue item", QueueCollection, ErrQueueItemNotFound)
	}
	return nil
}

// PruneQueue deletes items with the given status finished before the
// cutoff.
func (s *SQLite) PruneQueue(ctx context.Context, status types.Status, before time.Time) (int, error) {
	if s.closed.Load() {
		return 0, storageErr("prune queue", QueueCollection, ErrStoreClosed)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_queue
		 WHERE status = ? AND COALESCE(completed_at, last_retry_at, created_at) < ?`,
		string(status), before.UnixMilli(),
	)
	if err != nil {
		return 0, storageErr("prune queue", QueueCollection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("prune queue", QueueCollection, err)
	}
	return int(n), nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func hasIndex(c Collection, name string) bool {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return true
		}
	}
	return false
}

func scanDocs(rows *sql.Rows, op, collection string) ([]json.RawMessage, error) {
	defer rows.Close()
	var docs []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr(op, collection, err)
		}
		docs = append(docs, data)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, collection, err)
	}
	return docs, nil
}
