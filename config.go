package rescache

import (
	"strings"
	"time"

	"github.com/auth-platform/rescache/breaker"
	"github.com/auth-platform/rescache/l1"
	"github.com/auth-platform/rescache/serializer"
	"github.com/auth-platform/rescache/telemetry"
)

// CacheFactoryConfig enumerates every option NewCache accepts. It is a
// plain struct: loading it from environment variables or flags is the
// caller's concern, not this library's.
type CacheFactoryConfig struct {
	// L1 controls the in-process tier. Set L1Enabled=false to run
	// L2-only.
	L1Enabled  bool
	L1Backend  l1.Policy // "ttl" or "lru"
	L1MaxSize  int
	L1TTL      time.Duration

	// L2 controls the Redis/Valkey tier. Set L2Enabled=false to run
	// L1-only (an in-process-only cache).
	L2Enabled bool
	L2Addrs   []string
	L2DB      int
	L2Password      string
	L2ConnectTimeout time.Duration
	L2SocketTimeout  time.Duration
	L2KeyPrefix      string
	L2TTL            time.Duration

	// Serializer selects a registered name (looked up in
	// serializer.Default()) or, if Instance is set, uses it directly
	// and ignores Serializer.
	Serializer         string
	SerializerInstance serializer.Serializer

	CircuitBreakerEnabled   bool
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	Logger telemetry.Logger
}

// validate checks CacheFactoryConfig: bad backend names, non-positive
// sizes and negative TTLs fail at construction, never at runtime. A
// zero TTL means unset (no expiry). Every violation is accumulated,
// then joined into one ConfigError.
func (c CacheFactoryConfig) validate() []string {
	var problems []string

	if !c.L1Enabled && !c.L2Enabled {
		problems = append(problems, "at least one of L1Enabled or L2Enabled must be true")
	}

	if c.L1Enabled {
		if c.L1Backend != l1.PolicyTTL && c.L1Backend != l1.PolicyLRU {
			problems = append(problems, "L1Backend must be \"ttl\" or \"lru\"")
		}
		if c.L1MaxSize <= 0 {
			problems = append(problems, "L1MaxSize must be positive")
		}
		if c.L1TTL < 0 {
			problems = append(problems, "L1TTL must not be negative")
		}
	}

	if c.L2Enabled {
		if len(c.L2Addrs) == 0 {
			problems = append(problems, "L2Addrs must be non-empty when L2Enabled")
		}
		if strings.TrimSpace(c.L2KeyPrefix) == "" {
			problems = append(problems, "L2KeyPrefix must be non-empty when L2Enabled")
		}
		if c.L2TTL < 0 {
			problems = append(problems, "L2TTL must not be negative")
		}
		if c.CircuitBreakerEnabled {
			if c.CircuitBreakerThreshold < 1 {
				problems = append(problems, "CircuitBreakerThreshold must be >= 1")
			}
			if c.CircuitBreakerTimeout < time.Second {
				problems = append(problems, "CircuitBreakerTimeout must be >= 1s")
			}
		}
	}

	if c.SerializerInstance == nil && strings.TrimSpace(c.Serializer) == "" {
		c.Serializer = "gob"
	}

	return problems
}

func (c CacheFactoryConfig) breakerConfig() breaker.Config {
	return breaker.Config{
		Enabled:          c.CircuitBreakerEnabled,
		FailureThreshold: c.CircuitBreakerThreshold,
		SuccessThreshold: 1,
		Timeout:          c.CircuitBreakerTimeout,
	}
}
