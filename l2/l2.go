// Package l2 implements the Redis/Valkey-backed remote cache tier: a
// backend.CacheBackend that talks to redis.UniversalClient, prefixes
// every key with a configured namespace, and runs every round trip
// through a breaker.Breaker so a downed or overloaded Redis degrades
// to fast failures instead of blocking callers.
package l2

import (
	"context"
	"errors"
	"time"

	"github.com/auth-platform/rescache/backend"
	"github.com/auth-platform/rescache/breaker"
	"github.com/auth-platform/rescache/cacheerr"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// scanBatchSize bounds how many keys SCAN returns per cursor hop, and
// how many keys get DEL'd in one pipeline call.
const scanBatchSize = 200

// Config configures a Backend.
type Config struct {
	// Addrs lists one or more host:port endpoints. A single address
	// uses redis.NewClient; more than one uses redis.NewClusterClient.
	Addrs    []string
	Password string
	DB       int

	KeyPrefix string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Breaker breaker.Config

	// Tracer is optional. When set, Get, Set, SetIfNotExist and Delete
	// each open a "rescache.l2.<op>" span; the other operations are not
	// traced. A nil Tracer means zero tracing overhead.
	Tracer trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	return c
}

// Backend is the Redis/Valkey cache tier. It satisfies
// backend.CacheBackend structurally.
type Backend struct {
	client  redis.UniversalClient
	breaker *breaker.Breaker
	prefix  string
	tracer  trace.Tracer
}

// New connects to Redis/Valkey per cfg and wraps every call in a
// circuit breaker. It pings once at construction time to surface a
// misconfigured address immediately.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Addrs) == 0 {
		return nil, cacheerr.ConfigError("l2: at least one address is required")
	}

	var client redis.UniversalClient
	if len(cfg.Addrs) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addrs[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, cacheerr.ConnectionError("l2: initial ping failed", err)
	}

	return &Backend{
		client:  client,
		breaker: breaker.New(cfg.Breaker),
		prefix:  cfg.KeyPrefix,
		tracer:  cfg.Tracer,
	}, nil
}

// NewFromClient wraps an already-constructed redis.UniversalClient
// (a miniredis-backed client in tests, or a caller-owned pool).
func NewFromClient(client redis.UniversalClient, prefix string, bcfg breaker.Config) *Backend {
	return &Backend{client: client, breaker: breaker.New(bcfg), prefix: prefix}
}

func (b *Backend) key(k string) string {
	return b.prefix + k
}

// startSpan opens a "rescache.l2.<op>" span when a tracer is configured; it
// is a no-op (returning ctx unchanged and a nil-safe span) otherwise.
func (b *Backend) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	if b.tracer == nil {
		return ctx, nil
	}
	return b.tracer.Start(ctx, "rescache.l2."+op, trace.WithAttributes(
		attribute.String("cache.operation", op),
		attribute.String("cache.key", key),
	))
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// classify turns a redis error into the shared taxonomy. redis.Nil is
// not an error here: callers translate it to found=false.
func classify(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return cacheerr.ConnectionError("l2: redis operation failed", err)
}

// Get returns the stored value, or found=false on a miss.
func (b *Backend) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	ctx, span := b.startSpan(ctx, "get", key)
	defer func() { endSpan(span, err) }()

	var out []byte
	err = b.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := b.client.Get(ctx, b.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		if errors.Is(err, cacheerr.ErrCircuitOpen) {
			err = cacheerr.ConnectionError("l2: circuit open", err)
			return nil, false, err
		}
		err = classify(err)
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

// Set stores value with ttl. Any ttl<=0, backend.NoTTL included,
// stores with no expiry, matching redis.Client.Set's own semantics.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	ctx, span := b.startSpan(ctx, "set", key)
	defer func() { endSpan(span, err) }()

	exp := redisExpiry(ttl)
	err = b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.client.Set(ctx, b.key(key), value, exp).Err()
	})
	if errors.Is(err, cacheerr.ErrCircuitOpen) {
		err = cacheerr.ConnectionError("l2: circuit open", err)
		return err
	}
	err = classify(err)
	return err
}

// SetIfNotExist stores value only if key is absent, via SETNX.
func (b *Backend) SetIfNotExist(ctx context.Context, key string, value []byte, ttl time.Duration) (set bool, err error) {
	ctx, span := b.startSpan(ctx, "setnx", key)
	defer func() { endSpan(span, err) }()

	exp := redisExpiry(ttl)
	err = b.breaker.Execute(ctx, func(ctx context.Context) error {
		ok, err := b.client.SetNX(ctx, b.key(key), value, exp).Result()
		set = ok
		return err
	})
	if err != nil {
		if errors.Is(err, cacheerr.ErrCircuitOpen) {
			err = cacheerr.ConnectionError("l2: circuit open", err)
			return false, err
		}
		return false, classify(err)
	}
	return set, nil
}

// Delete removes key, reporting whether it existed.
func (b *Backend) Delete(ctx context.Context, key string) (existed bool, err error) {
	ctx, span := b.startSpan(ctx, "delete", key)
	defer func() { endSpan(span, err) }()

	var n int64
	err = b.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := b.client.Del(ctx, b.key(key)).Result()
		n = v
		return err
	})
	if err != nil {
		if errors.Is(err, cacheerr.ErrCircuitOpen) {
			err = cacheerr.ConnectionError("l2: circuit open", err)
			return false, err
		}
		err = classify(err)
		return false, err
	}
	return n > 0, nil
}

// Clear removes every key under this backend's prefix via SCAN+DEL in
// batches, and returns the count removed.
func (b *Backend) Clear(ctx context.Context) (int, error) {
	total := 0
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		pattern := b.key("") + "*"
		var cursor uint64
		for {
			keys, next, err := b.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := b.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
				total += len(keys)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, cacheerr.ErrCircuitOpen) {
			return total, cacheerr.ConnectionError("l2: circuit open", err)
		}
		return total, classify(err)
	}
	return total, nil
}

// Exists reports whether key is present.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := b.client.Exists(ctx, b.key(key)).Result()
		n = v
		return err
	})
	if err != nil {
		if errors.Is(err, cacheerr.ErrCircuitOpen) {
			return false, cacheerr.ConnectionError("l2: circuit open", err)
		}
		return false, classify(err)
	}
	return n > 0, nil
}

// GetTTL returns the remaining TTL for key. Redis reports -1 for "no
// expiry" and -2 for "key absent"; both are translated to this
// backend's own conventions (backend.NoTTL, found=false).
func (b *Backend) GetTTL(ctx context.Context, key string) (time.Duration, bool, error) {
	var ttl time.Duration
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := b.client.TTL(ctx, b.key(key)).Result()
		ttl = v
		return err
	})
	if err != nil {
		if errors.Is(err, cacheerr.ErrCircuitOpen) {
			return 0, false, cacheerr.ConnectionError("l2: circuit open", err)
		}
		return 0, false, classify(err)
	}
	switch {
	case ttl == -2:
		return 0, false, nil
	case ttl == -1:
		return backend.NoTTL, true, nil
	default:
		return ttl, true, nil
	}
}

// ListKeys returns the live keys matching prefix (relative to this
// backend's own KeyPrefix), gathered via SCAN. Ordering is unspecified.
func (b *Backend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		pattern := b.key(prefix) + "*"
		var cursor uint64
		for {
			batch, next, err := b.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
			if err != nil {
				return err
			}
			for _, k := range batch {
				keys = append(keys, k[len(b.prefix):])
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, cacheerr.ErrCircuitOpen) {
			return nil, cacheerr.ConnectionError("l2: circuit open", err)
		}
		return nil, classify(err)
	}
	return keys, nil
}

// GetSize counts keys under this backend's prefix via SCAN. Redis has
// no native "count keys matching pattern" command cheaper than a scan.
func (b *Backend) GetSize(ctx context.Context) (int, error) {
	keys, err := b.ListKeys(ctx, "")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// GetStats reports this tier's connectivity and circuit state. Redis
// doesn't expose per-tier hit/miss counters the way l1 tracks them
// in-process, so Hits/Misses are left at zero; callers that need
// Redis-side hit ratios should read INFO stats out of band.
func (b *Backend) GetStats(ctx context.Context) (backend.Stats, error) {
	connected := b.client.Ping(ctx).Err() == nil
	return backend.Stats{
		Enabled:      true,
		Backend:      "redis",
		Connected:    connected,
		CircuitState: b.breaker.State().String(),
	}, nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	return b.client.Close()
}

// redisExpiry maps a TTL onto go-redis's Set: any ttl<=0, backend.NoTTL
// included, becomes zero, which go-redis treats as no expiry. Callers
// that want a default TTL resolve it before calling this backend.
func redisExpiry(ttl time.Duration) time.Duration {
	if ttl == backend.NoTTL || ttl <= 0 {
		return 0
	}
	return ttl
}

var _ backend.CacheBackend = (*Backend)(nil)
