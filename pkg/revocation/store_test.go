package revocation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, ""), mr
}

func TestRedisStore_CurrentDefaultsToZero(t *testing.T) {
	store, _ := setupRedisStore(t)

	v, err := store.Current(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestRedisStore_Bump(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		v, err := store.Bump(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	v, err := store.Current(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	other, err := store.Current(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, other, "versions are per user")

	got, err := mr.Get("accessd:pv:42")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()

	_, err := store.Current(context.Background(), 42)
	assert.Error(t, err)

	_, err = store.Bump(context.Background(), 42)
	assert.Error(t, err)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "test:")
	_, err = store.Bump(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:1"))
}

func TestNopStore(t *testing.T) {
	var store Store = NopStore{}

	v, err := store.Bump(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = store.Current(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, v)
}
