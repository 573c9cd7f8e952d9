package serializer

import (
	"strings"
	"sync"

	"github.com/auth-platform/rescache/cacheerr"
)

// Factory builds a Serializer instance. Registered factories are
// called once per Get so that stateful serializers (the Encrypted
// wrapper, for instance) can be instantiated fresh per lookup if the
// caller wants that; the default built-ins are stateless and simply
// return the same kind of value every time.
type Factory func() Serializer

// Registry is the process-wide, name-keyed serializer registry:
// process-wide state, initialized once at startup, whose membership
// is append-mostly. It is a thin, domain-typed facade over a generic
// registry.Registry[K,V] shape: an RWMutex-guarded map, read-mostly
// once populated.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Factory
}

// NewRegistry creates an empty registry. Most callers want Default()
// instead, which comes pre-seeded with the gob and json built-ins.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Factory)}
}

// Register adds or overwrites the factory for name. Registration is
// idempotent: re-registering the same name silently replaces the
// prior factory.
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return cacheerr.ConfigError("serializer factory must not be nil")
	}
	key := strings.ToLower(name)
	if key == "" {
		return cacheerr.ConfigError("serializer name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = factory
	return nil
}

// Get resolves name to a fresh Serializer instance. It fails with a
// ConfigInvalid error if name was never registered — resolution
// happens at factory/construction time, never as a per-call lookup on
// the hot path.
func (r *Registry) Get(name string) (Serializer, error) {
	key := strings.ToLower(name)
	r.mu.RLock()
	factory, ok := r.items[key]
	r.mu.RUnlock()
	if !ok {
		return nil, cacheerr.ConfigError("no serializer registered under name " + name)
	}
	return factory(), nil
}

// List returns the registered names. The returned slice is a copy;
// mutating it does not affect the registry.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	return names
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	_ = r.Register("gob", func() Serializer { return Gob() })
	_ = r.Register("json", func() Serializer { return JSON() })
	return r
})

// Default returns the process-wide registry, pre-seeded with the
// "gob" and "json" built-ins on first use.
func Default() *Registry {
	return defaultRegistry()
}
