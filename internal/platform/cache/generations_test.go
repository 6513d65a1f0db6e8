package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheBasics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("get_missing", func(t *testing.T) {
		_, found, err := m.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set_get_delete", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
		val, found, err := m.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v"), val)

		require.NoError(t, m.Delete(ctx, "k"))
		_, found, err = m.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("expiry", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "ttl", []byte("v"), time.Minute))
		m.Advance(2 * time.Minute)
		_, found, err := m.Get(ctx, "ttl")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("incr", func(t *testing.T) {
		n, err := m.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = m.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		// Counters are visible to Get as decimal strings, like Redis.
		raw, found, err := m.Get(ctx, "counter")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "2", string(raw))
	})
}

func TestMemoryTryLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	got, err := m.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, got, "first caller should acquire the lock")

	got, err = m.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, got, "second caller should lose while the lock is held")

	// Expiry is the release.
	m.Advance(2 * time.Minute)
	got, err = m.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, got, "lock should be acquirable after its TTL passes")
}

func TestGenerationsKeyAndBump(t *testing.T) {
	ctx := context.Background()
	g := NewGenerations(NewMemory(), nil)

	assert.Equal(t, "queue_g0_stats", g.Key(ctx, "queue", "stats"))

	gen := g.Bump(ctx, "queue")
	assert.Equal(t, int64(1), gen)
	assert.Equal(t, "queue_g1_stats", g.Key(ctx, "queue", "stats"))

	// Buckets are independent.
	assert.Equal(t, "usage_g0_snapshot", g.Key(ctx, "usage", "snapshot"))
}

// TestBumpOrphansOldEntries verifies the core invalidation property: after a
// bump, reads through the new generation never observe values written under
// the old one.
func TestBumpOrphansOldEntries(t *testing.T) {
	ctx := context.Background()
	g := NewGenerations(NewMemory(), nil)

	type stats struct {
		Pending int `json:"pending"`
	}

	require.NoError(t, g.SetJSON(ctx, "queue", "stats", stats{Pending: 7}, time.Minute))

	var got stats
	require.NoError(t, g.GetJSON(ctx, "queue", "stats", &got))
	assert.Equal(t, 7, got.Pending)

	g.Bump(ctx, "queue")

	err := g.GetJSON(ctx, "queue", "stats", &got)
	assert.ErrorIs(t, err, ErrMiss, "old-generation entry must be unreachable after bump")
}

func TestGenerationsMemoAndReset(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	writer := NewGenerations(backend, nil)
	reader := NewGenerations(backend, nil)

	// Prime the reader's memo at generation zero.
	assert.Equal(t, int64(0), reader.Generation(ctx, "queue"))

	// Another process bumps; the memoized reader does not see it yet.
	writer.Bump(ctx, "queue")
	assert.Equal(t, int64(0), reader.Generation(ctx, "queue"))

	// A new invocation resets the memo and picks up the shared counter.
	reader.Reset()
	assert.Equal(t, int64(1), reader.Generation(ctx, "queue"))
}

func TestGenerationsManyBumps(t *testing.T) {
	ctx := context.Background()
	g := NewGenerations(NewMemory(), nil)

	for i := 1; i <= 10; i++ {
		assert.Equal(t, int64(i), g.Bump(ctx, "queue"))
	}
	assert.Equal(t, fmt.Sprintf("queue_g%d_x", 10), g.Key(ctx, "queue", "x"))
}
