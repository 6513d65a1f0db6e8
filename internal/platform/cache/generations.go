package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Generations layers generation-counter invalidation on a Cache. Each
// logical bucket ("queue", "usage_logs", ...) owns an integer counter that
// is folded into every cache key built for that bucket; bumping the counter
// orphans every previously written key at once. Orphans are never deleted —
// they simply expire — which keeps invalidation O(1) on backends with no
// prefix deletion.
//
// Counters are memoized in-process so a burst of reads during one trigger
// invocation costs a single backend round trip.
type Generations struct {
	cache  Cache
	logger *slog.Logger

	mu   sync.Mutex
	memo map[string]int64
}

// NewGenerations creates a Generations layer over the given cache.
func NewGenerations(c Cache, logger *slog.Logger) *Generations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generations{
		cache:  c,
		logger: logger.With("component", "cache_generations"),
		memo:   make(map[string]int64),
	}
}

// Reset drops the in-process memo so the next read fetches counters from
// the backend again. Long-lived processes call this at the start of each
// trigger invocation; the memo is meant to span one invocation, not the
// process lifetime, or bumps from other processes would go unseen.
func (g *Generations) Reset() {
	g.mu.Lock()
	g.memo = make(map[string]int64)
	g.mu.Unlock()
}

func counterKey(bucket string) string {
	return "gen_" + bucket
}

// Generation returns the current counter for a bucket, reading through the
// in-process memo. An unreadable counter degrades to generation zero: the
// worst outcome is serving a stale entry for one TTL, which the caller
// already tolerates.
func (g *Generations) Generation(ctx context.Context, bucket string) int64 {
	g.mu.Lock()
	if gen, ok := g.memo[bucket]; ok {
		g.mu.Unlock()
		return gen
	}
	g.mu.Unlock()

	var gen int64
	raw, found, err := g.cache.Get(ctx, counterKey(bucket))
	if err != nil {
		g.logger.Warn("failed to read generation counter",
			"bucket", bucket,
			"error", err)
	} else if found {
		gen, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			g.logger.Warn("generation counter is not an integer, treating as zero",
				"bucket", bucket,
				"value", string(raw))
			gen = 0
		}
	}

	g.mu.Lock()
	g.memo[bucket] = gen
	g.mu.Unlock()
	return gen
}

// Bump increments and persists the bucket's counter, making every key built
// under the previous generation unreachable. Returns the new generation.
func (g *Generations) Bump(ctx context.Context, bucket string) int64 {
	gen, err := g.cache.Incr(ctx, counterKey(bucket))
	if err != nil {
		// Fall back to advancing the memo only; this process stops serving
		// old entries even if the shared counter write failed.
		g.logger.Warn("failed to bump generation counter",
			"bucket", bucket,
			"error", err)
		g.mu.Lock()
		g.memo[bucket]++
		gen = g.memo[bucket]
		g.mu.Unlock()
		return gen
	}

	g.mu.Lock()
	g.memo[bucket] = gen
	g.mu.Unlock()
	return gen
}

// Key builds the generation-qualified cache key for a bucket and suffix:
// "{bucket}_g{generation}_{suffix}".
func (g *Generations) Key(ctx context.Context, bucket, suffix string) string {
	return fmt.Sprintf("%s_g%d_%s", bucket, g.Generation(ctx, bucket), suffix)
}

// GetJSON unmarshals the cached value for the current generation of
// bucket/suffix into out. Returns ErrMiss when absent.
func (g *Generations) GetJSON(ctx context.Context, bucket, suffix string, out any) error {
	raw, found, err := g.cache.Get(ctx, g.Key(ctx, bucket, suffix))
	if err != nil {
		return err
	}
	if !found {
		return ErrMiss
	}
	return json.Unmarshal(raw, out)
}

// SetJSON stores value under the current generation of bucket/suffix.
func (g *Generations) SetJSON(ctx context.Context, bucket, suffix string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return g.cache.Set(ctx, g.Key(ctx, bucket, suffix), raw, ttl)
}
