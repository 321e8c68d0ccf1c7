package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huykn/offline-sync/types"
)

// RedisBackend implements Backend against a Redis server, one hash per
// collection keyed by record ID. It doubles as a connectivity probe via
// Ping and as a prefetch source via FetchAll.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a Redis-based backend and verifies the
// connection.
func NewRedisBackend(addr, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBackend{client: client}, nil
}

// Apply dispatches one mutation to Redis.
func (rb *RedisBackend) Apply(ctx context.Context, op Operation) error {
	if op.Key == "" {
		return ErrMissingKey
	}
	switch op.Action {
	case types.ActionCreate, types.ActionUpdate:
		return rb.client.HSet(ctx, op.Collection, op.Key, []byte(op.Data)).Err()
	case types.ActionDelete:
		return rb.client.HDel(ctx, op.Collection, op.Key).Err()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, op.Action)
	}
}

// FetchAll returns every record in a collection's hash, usable as a
// critical-data prefetch source.
func (rb *RedisBackend) FetchAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	values, err := rb.client.HGetAll(ctx, collection).Result()
	if err != nil {
		return nil, err
	}
	records := make([]json.RawMessage, 0, len(values))
	for _, value := range values {
		records = append(records, json.RawMessage(value))
	}
	return records, nil
}

// Ping reports whether the backend is reachable.
func (rb *RedisBackend) Ping(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rb *RedisBackend) Close() error {
	return rb.client.Close()
}

// Client returns the underlying Redis client.
func (rb *RedisBackend) Client() *redis.Client {
	return rb.client
}
