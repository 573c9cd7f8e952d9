// Package backend defines the contract both cache tiers (L1 and L2)
// satisfy, and the read-only statistics snapshot each one reports.
// Both the in-memory and the Redis backend import this package for
// Stats and NoTTL, and each asserts at compile time that it satisfies
// CacheBackend; the coordinator holds the concrete backend types.
package backend

import (
	"context"
	"time"
)

// NoTTL is the sentinel GetTTL returns for a key with no expiry.
const NoTTL time.Duration = -1

// Stats is a read-only, copied snapshot of a single tier's state. It
// never aliases internal mutable fields.
type Stats struct {
	Enabled bool
	Backend string
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64

	// L2-only fields; zero/false for L1.
	Connected    bool
	CircuitState string
}

// CacheBackend is the operation set common to both tiers: get, set,
// conditional-set, delete, clear, exists, get_ttl, list_keys,
// get_size, get_stats.
type CacheBackend interface {
	// Get returns the stored value. found=false, err=nil is a miss;
	// it never returns an error for mere absence.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value, overwriting any existing entry. ttl<=0 means
	// "use this tier's configured default"; a tier with no default
	// (L2) stores the entry with no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfNotExist stores value only if key is absent. set=false
	// means the key already existed and was left untouched.
	SetIfNotExist(ctx context.Context, key string, value []byte, ttl time.Duration) (set bool, err error)

	// Delete removes key. existed reports whether it was present.
	Delete(ctx context.Context, key string) (existed bool, err error)

	// Clear removes every entry this tier owns (for L2, every entry
	// under its configured prefix) and reports the count removed.
	Clear(ctx context.Context) (removed int, err error)

	// Exists reports whether key is present, without reading its value.
	Exists(ctx context.Context, key string) (bool, error)

	// GetTTL returns the remaining TTL for key. found=false means the
	// key is absent. A found key with no expiry reports ttl=NoTTL.
	GetTTL(ctx context.Context, key string) (ttl time.Duration, found bool, err error)

	// ListKeys returns the unprefixed keys matching prefix (all keys
	// if prefix is empty). Ordering is unspecified.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// GetSize returns the number of entries currently stored.
	GetSize(ctx context.Context) (int, error)

	// GetStats returns a point-in-time copy of this tier's counters.
	GetStats(ctx context.Context) (Stats, error)

	// Close releases any resources owned by this backend.
	Close() error
}
