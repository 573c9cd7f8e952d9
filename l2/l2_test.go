package l2

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/auth-platform/rescache/backend"
	"github.com/auth-platform/rescache/breaker"
	"github.com/auth-platform/rescache/cacheerr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client, "test:", breaker.Config{Enabled: false}), mr
}

func TestGetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	v, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestGetMissReturnsNoError(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	v, found, err := b.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
}

func TestKeysArePrefixed(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := mr.Get("test:k")
	require.NoError(t, err)
}

func TestSetIfNotExist(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	set, err := b.SetIfNotExist(ctx, "k", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = b.SetIfNotExist(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, set)

	v, _, _ := b.Get(ctx, "k")
	assert.Equal(t, []byte("first"), v)
}

func TestDeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	existed, err := b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	ok, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	ok, err = b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetTTLReportsNoExpiryAndMiss(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	_, found, err := b.GetTTL(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	ttl, found, err := b.GetTTL(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, backend.NoTTL, ttl)

	require.NoError(t, b.Set(ctx, "k2", []byte("v"), time.Minute))
	ttl, found, err = b.GetTTL(ctx, "k2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestListKeysStripsPrefix(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	require.NoError(t, b.Set(ctx, "user:1", []byte("v"), time.Minute))
	require.NoError(t, b.Set(ctx, "user:2", []byte("v"), time.Minute))
	require.NoError(t, b.Set(ctx, "order:1", []byte("v"), time.Minute))

	keys, err := b.ListKeys(ctx, "user:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)
}

func TestClearRemovesOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t)

	require.NoError(t, b.Set(ctx, "a", []byte("v"), time.Minute))
	require.NoError(t, b.Set(ctx, "b", []byte("v"), time.Minute))
	require.NoError(t, mr.Set("other:x", "v"))

	n, err := b.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, found, _ := b.Get(ctx, "a")
	assert.False(t, found)
	assert.True(t, mr.Exists("other:x"))
}

func TestGetSizeCountsOwnPrefix(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, b.Set(ctx, k, []byte("v"), time.Minute))
	}
	size, err := b.GetSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestGetStatsReportsConnected(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	stats, err := b.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Connected)
	assert.Equal(t, "closed", stats.CircuitState)
}

func TestConnectionFailureSurfacesAsConnectionError(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewFromClient(client, "test:", breaker.Config{Enabled: false})

	mr.Close()

	_, _, err := b.Get(ctx, "k")
	require.Error(t, err)
	assert.True(t, cacheerr.IsConnectionError(err))
}
