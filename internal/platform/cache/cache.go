// Package cache provides the key/value caching layer shared by the queue
// engine, the quota reconciler, and the remote client. Backends are expected
// to expire entries on their own; nothing in this package deletes by prefix,
// which is exactly why the generation-counter scheme in generations.go
// exists.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by typed helpers when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Default TTLs, shared by the services built on this package.
const (
	// DefaultTTL suits slowly changing data like the quota snapshot.
	DefaultTTL = 5 * time.Minute

	// ShortTTL suits volatile data like queue stats.
	ShortTTL = 2 * time.Minute
)

// Cache is a minimal TTL key/value store. All methods are safe for
// concurrent use.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. A non-positive ttl stores the
	// value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Incr atomically increments the integer stored at key (starting from
	// zero when absent) and returns the new value. Counters do not expire.
	Incr(ctx context.Context, key string) (int64, error)

	// TryLock acquires the named lock for ttl if it is free, returning
	// whether this caller got it. There is no unlock: expiry is the
	// release, so a crashed holder cannot wedge the lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
