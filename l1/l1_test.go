package l1

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/auth-platform/rescache/backend"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetLRU(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, time.Hour)

	require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
	v, found, err := b.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("1"), v)
}

func TestGetMissReturnsNoError(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, time.Hour)

	v, found, err := b.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
}

func TestDeleteThenGetIsMiss(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, time.Hour)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	existed, err := b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	_, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, time.Hour)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	first, err := b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, second)
}

func TestSetIfNotExist(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, time.Hour)

	set, err := b.SetIfNotExist(ctx, "k", []byte("first"), 0)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = b.SetIfNotExist(ctx, "k", []byte("second"), 0)
	require.NoError(t, err)
	assert.False(t, set)

	v, _, _ := b.Get(ctx, "k")
	assert.Equal(t, []byte("first"), v)
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewTTL(10, 0)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetTTLReportsNoExpiryAsSentinel(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, 0)
	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))

	ttl, found, err := b.GetTTL(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, backend.NoTTL, ttl)
}

func TestLRUEvictionBound(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(3, time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
	}

	size, err := b.GetSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	// k0 and k1 are least-recently-used and should have been evicted.
	_, found, _ := b.Get(ctx, "k0")
	assert.False(t, found)
	_, found, _ = b.Get(ctx, "k1")
	assert.False(t, found)
	_, found, _ = b.Get(ctx, "k4")
	assert.True(t, found)
}

func TestLRUAccessRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(2, time.Hour)

	require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), 0))

	// touch "a" so "b" becomes the least-recently-used entry
	_, _, _ = b.Get(ctx, "a")
	require.NoError(t, b.Set(ctx, "c", []byte("3"), 0))

	_, found, _ := b.Get(ctx, "b")
	assert.False(t, found, "b should have been evicted, not a")
	_, found, _ = b.Get(ctx, "a")
	assert.True(t, found)
}

func TestTTLPolicyEvictsNearestDeadlineFirst(t *testing.T) {
	ctx := context.Background()
	b := NewTTL(2, 0)

	require.NoError(t, b.Set(ctx, "soon", []byte("1"), time.Minute))
	require.NoError(t, b.Set(ctx, "later", []byte("2"), time.Hour))
	require.NoError(t, b.Set(ctx, "newcomer", []byte("3"), time.Hour))

	_, found, _ := b.Get(ctx, "soon")
	assert.False(t, found, "nearest-deadline entry should be evicted first")
	_, found, _ = b.Get(ctx, "later")
	assert.True(t, found)
	_, found, _ = b.Get(ctx, "newcomer")
	assert.True(t, found)
}

func TestClearRemovesEverythingAndReturnsCount(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, time.Hour)

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
	}

	removed, err := b.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	size, _ := b.GetSize(ctx)
	assert.Equal(t, 0, size)
}

func TestInvalidKeyIsRejected(t *testing.T) {
	ctx := context.Background()
	b := NewLRU(10, time.Hour)

	_, _, err := b.Get(ctx, "")
	require.Error(t, err)

	err = b.Set(ctx, "", []byte("v"), 0)
	require.Error(t, err)
}

// TestLRUEvictionExactnessProperty checks that for all L1 capacities
// N, after N+M distinct inserts, L1 holds exactly N entries.
func TestLRUEvictionExactnessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("size never exceeds maxsize", prop.ForAll(
		func(capacity, inserts int) bool {
			ctx := context.Background()
			b := NewLRU(capacity, time.Hour)
			for i := 0; i < inserts; i++ {
				_ = b.Set(ctx, fmt.Sprintf("key-%d", i), []byte("v"), 0)
			}
			size, _ := b.GetSize(ctx)
			return size == min(capacity, inserts)
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
