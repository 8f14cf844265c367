package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	// Create a mock Redis server
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return NewRedisBackendWithClient(client, DefaultRedisConfig().Prefix), mr
}

func TestNewRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	backend, err := NewRedisBackend(config)
	require.NoError(t, err)
	assert.NotNil(t, backend)
	defer backend.Close()
}

func TestNewRedisBackend_ConnectionError(t *testing.T) {
	config := DefaultRedisConfig()
	config.Addr = "localhost:99999" // Invalid port

	_, err := NewRedisBackend(config)
	assert.Error(t, err)
}

func TestRedisBackend(t *testing.T) {
	backend, mr := setupTestRedis(t)
	defer mr.Close()
	defer backend.Close()

	backendContract(t, backend)
	assert.True(t, mr.Exists("templater:templates:httpbin"))
	assert.True(t, mr.Exists("templater:features:cors"))
}

func TestRedisBackend_Clear(t *testing.T) {
	backend, mr := setupTestRedis(t)
	defer mr.Close()
	defer backend.Close()

	ctx := context.Background()
	require.NoError(t, backend.Put(ctx, KindTemplate, "a", []byte("{}")))
	require.NoError(t, backend.Put(ctx, KindFeature, "b", []byte("{}")))
	require.NoError(t, mr.Set("other:key", "kept"))

	require.NoError(t, backend.Clear(ctx))

	names, err := backend.List(ctx, KindTemplate)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.True(t, mr.Exists("other:key"))
}
