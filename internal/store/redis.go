package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements a Redis-backed store
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		DB:     0,
		Prefix: "templater:",
	}
}

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(config RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisBackendWithClient(client, config.Prefix), nil
}

// NewRedisBackendWithClient creates a backend on an existing client
func NewRedisBackendWithClient(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: prefix,
	}
}

// key builds <prefix><kind>:<name>
func (r *RedisBackend) key(kind Kind, name string) string {
	return r.prefix + string(kind) + ":" + name
}

// Get retrieves a document
func (r *RedisBackend) Get(ctx context.Context, kind Kind, name string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(kind, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(kind, name)
		}
		return nil, err
	}
	return value, nil
}

// Put stores a document without expiry
func (r *RedisBackend) Put(ctx context.Context, kind Kind, name string, data []byte) error {
	if err := ValidateName(kind, name); err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(kind, name), data, 0).Err()
}

// Delete removes a document
func (r *RedisBackend) Delete(ctx context.Context, kind Kind, name string) error {
	n, err := r.client.Del(ctx, r.key(kind, name)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, name)
	}
	return nil
}

// List scans the keys of a kind
func (r *RedisBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	prefix := r.key(kind, "")
	names := []string{}
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Exists checks if a document is stored
func (r *RedisBackend) Exists(ctx context.Context, kind Kind, name string) (bool, error) {
	count, err := r.client.Exists(ctx, r.key(kind, name)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Clear removes every document under the prefix
func (r *RedisBackend) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
