package rescache

import (
	"context"
	"strings"
	"time"

	"github.com/auth-platform/rescache/cacheerr"
	"github.com/auth-platform/rescache/l1"
	"github.com/auth-platform/rescache/l2"
	"github.com/auth-platform/rescache/serializer"
	"github.com/auth-platform/rescache/telemetry"
)

// NewCache validates cfg and wires L1, L2, the breaker, and the
// serializer into a ready-to-use Cache. Validation failures return a
// *cacheerr.CacheError with code cacheerr.ConfigInvalid and never
// reach the network.
func NewCache(ctx context.Context, cfg CacheFactoryConfig) (*Cache, error) {
	if problems := cfg.validate(); len(problems) > 0 {
		return nil, cacheerr.ConfigError("invalid cache configuration: " + strings.Join(problems, "; "))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoop()
	}
	tagged := newTaggedLogger(logger).(taggedLogger)

	ser, err := resolveSerializer(cfg)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		l1KeyPrefix: "",
		l2KeyPrefix: cfg.L2KeyPrefix,
		l1TTL:       cfg.L1TTL,
		l2TTL:       cfg.L2TTL,
		serializer:  ser,
		logger:      tagged,
		instanceID:  tagged.instanceID(),
	}

	if cfg.L1Enabled {
		c.l1 = l1.New(l1.Config{
			MaxSize:    cfg.L1MaxSize,
			DefaultTTL: cfg.L1TTL,
			Policy:     cfg.L1Backend,
		})
	}

	if cfg.L2Enabled {
		l2Backend, err := l2.New(ctx, l2.Config{
			Addrs:        cfg.L2Addrs,
			Password:     cfg.L2Password,
			DB:           cfg.L2DB,
			KeyPrefix:    cfg.L2KeyPrefix + ":",
			DialTimeout:  cfg.L2ConnectTimeout,
			ReadTimeout:  cfg.L2SocketTimeout,
			WriteTimeout: cfg.L2SocketTimeout,
			Breaker:      cfg.breakerConfig(),
		})
		if err != nil {
			return nil, err
		}
		c.l2 = l2Backend
	}

	return c, nil
}

// CreateCache is a flattened constructor taking the cache's most
// commonly tuned parameters directly: l2_key_prefix, l2_ttl,
// l2_enabled, l1_enabled, l1_maxsize, l1_ttl, and an optional
// serializer. It builds a CacheFactoryConfig
// with sensible defaults for everything CacheFactoryConfig exposes
// beyond these parameters (LRU eviction, breaker enabled with a
// threshold of 5 and a 30s timeout) and delegates to NewCache.
func CreateCache(ctx context.Context, l2Addrs []string, l2KeyPrefix string, l2TTL, l1TTL time.Duration, l2Enabled, l1Enabled bool, l1MaxSize int, ser serializer.Serializer) (*Cache, error) {
	cfg := CacheFactoryConfig{
		L1Enabled: l1Enabled,
		L1Backend: l1.PolicyLRU,
		L1MaxSize: l1MaxSize,
		L1TTL:     l1TTL,

		L2Enabled:        l2Enabled,
		L2Addrs:          l2Addrs,
		L2KeyPrefix:      l2KeyPrefix,
		L2TTL:            l2TTL,
		L2ConnectTimeout: 5 * time.Second,
		L2SocketTimeout:  3 * time.Second,

		SerializerInstance: ser,

		CircuitBreakerEnabled:   true,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	}
	return NewCache(ctx, cfg)
}

func resolveSerializer(cfg CacheFactoryConfig) (serializer.Serializer, error) {
	if cfg.SerializerInstance != nil {
		return cfg.SerializerInstance, nil
	}
	name := cfg.Serializer
	if strings.TrimSpace(name) == "" {
		name = "gob"
	}
	return serializer.Default().Get(name)
}
