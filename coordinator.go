// Package rescache is the resilient two-level cache: a process-local
// L1 tier and a shared Redis/Valkey L2 tier, kept weakly consistent,
// gated by a circuit breaker so an L2 outage degrades to L1-only
// service instead of raising errors.
package rescache

import (
	"context"
	"time"

	"github.com/auth-platform/rescache/backend"
	"github.com/auth-platform/rescache/cacheerr"
	"github.com/auth-platform/rescache/l1"
	"github.com/auth-platform/rescache/l2"
	"github.com/auth-platform/rescache/serializer"
	"github.com/auth-platform/rescache/telemetry"
	"github.com/google/uuid"
)

// Cache is the public facade: the handle every caller holds. It
// sequences reads, writes, conditional writes, deletes, and
// promotions across L1 and L2.
type Cache struct {
	l1 *l1.Backend
	l2 *l2.Backend

	l1KeyPrefix string
	l2KeyPrefix string
	l1TTL       time.Duration
	l2TTL       time.Duration

	serializer serializer.Serializer
	logger     telemetry.Logger

	// instanceID tags every log line this Cache emits, a uuid.New()
	// stamped once at construction. There's no log-shipping pipeline
	// here, just a structured-logging facade, but multiple Cache
	// instances in one process writing to the same io.Writer still
	// need a way to tell their lines apart.
	instanceID string
}

// InstanceID returns the identifier this Cache stamps onto its log
// lines. It's generated once at construction and is stable for the
// life of the Cache.
func (c *Cache) InstanceID() string {
	return c.instanceID
}

// taggedLogger decorates a telemetry.Logger so every line it emits
// carries a constant cache_instance field, without every call site in
// this file having to remember to pass one.
type taggedLogger struct {
	inner telemetry.Logger
	field telemetry.Field
}

func newTaggedLogger(inner telemetry.Logger) telemetry.Logger {
	return taggedLogger{inner: inner, field: telemetry.String("cache_instance", uuid.New().String())}
}

func (l taggedLogger) Debug(ctx context.Context, msg string, fields ...telemetry.Field) {
	l.inner.Debug(ctx, msg, append(fields, l.field)...)
}
func (l taggedLogger) Info(ctx context.Context, msg string, fields ...telemetry.Field) {
	l.inner.Info(ctx, msg, append(fields, l.field)...)
}
func (l taggedLogger) Warn(ctx context.Context, msg string, fields ...telemetry.Field) {
	l.inner.Warn(ctx, msg, append(fields, l.field)...)
}
func (l taggedLogger) Error(ctx context.Context, msg string, fields ...telemetry.Field) {
	l.inner.Error(ctx, msg, append(fields, l.field)...)
}

func (l taggedLogger) instanceID() string {
	id, _ := l.field.Value.(string)
	return id
}

// Stats is the fused, read-only statistics record get_stats()
// returns: per-tier snapshots plus the configured policies.
type Stats struct {
	L1 backend.Stats
	L2 backend.Stats
}

// Get tries L1 first, then L2 through the breaker; an L2 hit is
// promoted to L1 best-effort. found=false, err=nil means both enabled
// tiers missed (or L2 was unreachable); a non-nil err is a
// SerializationError surfaced from deserializing a stored value, or,
// with L1 enabled, cacheerr.ErrInvalidKey for an empty or oversized key.
func (c *Cache) Get(ctx context.Context, key string) (any, bool, error) {
	if c.l1 != nil {
		raw, found, err := c.l1.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if found {
			value, err := c.serializer.Deserialize(raw)
			if err != nil {
				return nil, false, serializationFailure(err)
			}
			return value, true, nil
		}
	}

	if c.l2 == nil {
		return nil, false, nil
	}

	raw, found, err := c.l2.Get(ctx, key)
	if err != nil {
		c.logger.Debug(ctx, "l2 get failed, treating as miss", telemetry.String("key", key), telemetry.Error(err))
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}

	value, err := c.serializer.Deserialize(raw)
	if err != nil {
		return nil, false, serializationFailure(err)
	}

	if c.l1 != nil {
		encoded, encErr := c.serializer.Serialize(value)
		if encErr == nil {
			_ = c.l1.Set(ctx, key, encoded, c.l1TTL)
		}
	}

	return value, true, nil
}

// Set resolves per-tier TTLs, writes L1, then writes L2 through the
// breaker. L2 failure is absorbed as long as L1's own write succeeded;
// if L1 is disabled, or L1 also failed, the L2 error is surfaced.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	encoded, err := c.serializer.Serialize(value)
	if err != nil {
		return serializationFailure(err)
	}

	l1TTL, l2TTL := c.resolveTTLs(ttl)

	var l1Err error
	if c.l1 != nil {
		l1Err = c.l1.Set(ctx, key, encoded, l1TTL)
	}

	if c.l2 == nil {
		return l1Err
	}

	l2Err := c.l2.Set(ctx, key, encoded, l2TTL)
	if l2Err == nil {
		return nil
	}

	c.logger.Warn(ctx, "l2 set failed", telemetry.String("key", key), telemetry.Error(l2Err))
	if l1Err != nil {
		// Both tiers failed: the L2 error is the one spec.md says to
		// surface, regardless of what L1 reported.
		return l2Err
	}
	if c.l1 == nil {
		return l2Err
	}
	return nil
}

// SetIfNotExist follows L2-first semantics: L2 is the source of truth
// for the existence test whenever reachable.
func (c *Cache) SetIfNotExist(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	encoded, err := c.serializer.Serialize(value)
	if err != nil {
		return false, serializationFailure(err)
	}

	l1TTL, l2TTL := c.resolveTTLs(ttl)

	if c.l2 == nil {
		if c.l1 == nil {
			return false, nil
		}
		return c.l1.SetIfNotExist(ctx, key, encoded, l1TTL)
	}

	set, err := c.l2.SetIfNotExist(ctx, key, encoded, l2TTL)
	if err != nil {
		if !cacheerr.IsConnectionError(err) {
			return false, err
		}
		c.logger.Warn(ctx, "l2 set_if_not_exist failed, falling back to l1", telemetry.String("key", key), telemetry.Error(err))
		if c.l1 == nil {
			return false, nil
		}
		return c.l1.SetIfNotExist(ctx, key, encoded, l1TTL)
	}

	if !set {
		return false, nil
	}

	if c.l1 != nil {
		_ = c.l1.Set(ctx, key, encoded, l1TTL)
	}
	return true, nil
}

// Delete removes key from L1 then L2 (L1-first, so a racing reader
// never sees a value that's already gone from L2 but still cached
// locally).
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	var existed bool

	if c.l1 != nil {
		ok, err := c.l1.Delete(ctx, key)
		if err != nil {
			return false, err
		}
		existed = existed || ok
	}

	if c.l2 != nil {
		ok, err := c.l2.Delete(ctx, key)
		if err != nil {
			c.logger.Debug(ctx, "l2 delete failed", telemetry.String("key", key), telemetry.Error(err))
		} else {
			existed = existed || ok
		}
	}

	return existed, nil
}

// Clear empties both tiers and reports the per-tier counts removed. An
// L2 failure is logged and absorbed; l2Count then holds whatever was
// removed before the failure.
func (c *Cache) Clear(ctx context.Context) (l1Count, l2Count int, err error) {
	if c.l1 != nil {
		l1Count, err = c.l1.Clear(ctx)
		if err != nil {
			return l1Count, 0, err
		}
	}
	if c.l2 != nil {
		l2Count, err = c.l2.Clear(ctx)
		if err != nil {
			c.logger.Warn(ctx, "l2 clear failed", telemetry.Error(err))
			return l1Count, l2Count, nil
		}
	}
	return l1Count, l2Count, nil
}

// Exists consults L1 first; on L1 absence it consults L2 through the
// breaker. It never promotes.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if c.l1 != nil {
		ok, err := c.l1.Exists(ctx, key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	if c.l2 == nil {
		return false, nil
	}
	ok, err := c.l2.Exists(ctx, key)
	if err != nil {
		c.logger.Debug(ctx, "l2 exists failed, treating as absent", telemetry.String("key", key), telemetry.Error(err))
		return false, nil
	}
	return ok, nil
}

// GetTTL returns the minimum remaining TTL across enabled tiers that
// still hold key, or found=false if neither does. A finite TTL in any
// tier always wins over a "never expires" report from another tier;
// the two cases are tracked separately so processing order between L1
// and L2 can never flip the result.
func (c *Cache) GetTTL(ctx context.Context, key string) (time.Duration, bool, error) {
	var (
		bestFinite time.Duration
		haveFinite bool
		anyNoTTL   bool
	)

	consider := func(ttl time.Duration, found bool) {
		if !found {
			return
		}
		if ttl == backend.NoTTL {
			anyNoTTL = true
			return
		}
		if !haveFinite || ttl < bestFinite {
			bestFinite = ttl
		}
		haveFinite = true
	}

	if c.l1 != nil {
		ttl, found, err := c.l1.GetTTL(ctx, key)
		if err != nil {
			return 0, false, err
		}
		consider(ttl, found)
	}

	if c.l2 != nil {
		ttl, found, err := c.l2.GetTTL(ctx, key)
		if err == nil {
			consider(ttl, found)
		}
	}

	if haveFinite {
		return bestFinite, true, nil
	}
	if anyNoTTL {
		return backend.NoTTL, true, nil
	}
	return 0, false, nil
}

// ListKeys returns the deduplicated union of L1 and L2 keys matching
// prefix. Ordering is unspecified.
func (c *Cache) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	add := func(keys []string) {
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}

	if c.l1 != nil {
		keys, err := c.l1.ListKeys(ctx, prefix)
		if err != nil {
			return nil, err
		}
		add(keys)
	}

	if c.l2 != nil {
		keys, err := c.l2.ListKeys(ctx, prefix)
		if err != nil {
			c.logger.Debug(ctx, "l2 list_keys failed", telemetry.Error(err))
		} else {
			add(keys)
		}
	}

	return out, nil
}

// GetStats returns a fused, read-only snapshot of both tiers.
func (c *Cache) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if c.l1 != nil {
		s, err := c.l1.GetStats(ctx)
		if err != nil {
			return stats, err
		}
		stats.L1 = s
	}
	if c.l2 != nil {
		s, err := c.l2.GetStats(ctx)
		if err != nil {
			return stats, err
		}
		stats.L2 = s
	}
	return stats, nil
}

// Close releases both tiers' resources. L1's Close is a no-op; L2's
// closes the underlying connection pool.
func (c *Cache) Close() error {
	var err error
	if c.l2 != nil {
		err = c.l2.Close()
	}
	if c.l1 != nil {
		if l1Err := c.l1.Close(); l1Err != nil && err == nil {
			err = l1Err
		}
	}
	return err
}

func (c *Cache) resolveTTLs(ttl time.Duration) (l1TTL, l2TTL time.Duration) {
	l1TTL, l2TTL = ttl, ttl
	if ttl <= 0 {
		l1TTL = c.l1TTL
		l2TTL = c.l2TTL
	}
	return l1TTL, l2TTL
}

func serializationFailure(err error) error {
	if cacheerr.IsSerializationError(err) {
		return err
	}
	return cacheerr.SerializationError("failed to deserialize cached value", err)
}
