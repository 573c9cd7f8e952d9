// Package l1 implements the bounded, in-process cache tier: a
// key->value map with per-entry TTL and a choice of two eviction
// policies. There is no background cleanup goroutine: TTL expiry is
// enforced lazily, on access, with no internal timers, so expired
// entries are purged the next time they're touched, not on a
// schedule.
package l1

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/auth-platform/rescache/backend"
	"github.com/auth-platform/rescache/cacheerr"
)

// Policy selects the eviction strategy used once the backend is full.
type Policy string

const (
	// PolicyTTL evicts the entry with the nearest deadline first;
	// entries with equal or absent deadlines are evicted oldest-first.
	PolicyTTL Policy = "ttl"
	// PolicyLRU evicts the least-recently-used entry first; TTL still
	// applies on top of recency — both rules apply, and TTL takes
	// precedence when both would evict the same slot.
	PolicyLRU Policy = "lru"
)

// Config configures a Backend.
type Config struct {
	MaxSize    int
	DefaultTTL time.Duration
	Policy     Policy
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 10000
	}
	if c.Policy == "" {
		c.Policy = PolicyLRU
	}
	return c
}

type record struct {
	key        string
	value      []byte
	expiresAt  time.Time // zero means no expiry
	accessedAt time.Time
	element    *list.Element
}

func (r *record) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && now.After(r.expiresAt)
}

// Backend is the bounded in-memory cache tier. It satisfies
// backend.CacheBackend structurally.
type Backend struct {
	mu      sync.RWMutex
	data    map[string]*record
	order   *list.List // access order (lru) or deadline order (ttl)
	policy  Policy
	maxSize int

	defaultTTL time.Duration
	hits       int64
	misses     int64
}

// New creates a Backend configured per cfg. Zero-value fields default
// to a maxsize of 10000 and lazy expiry only; there is no cleanup
// ticker.
func New(cfg Config) *Backend {
	cfg = cfg.withDefaults()
	return &Backend{
		data:       make(map[string]*record),
		order:      list.New(),
		policy:     cfg.Policy,
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
	}
}

// NewTTL is a convenience constructor for the ttl eviction policy.
func NewTTL(maxSize int, defaultTTL time.Duration) *Backend {
	return New(Config{MaxSize: maxSize, DefaultTTL: defaultTTL, Policy: PolicyTTL})
}

// NewLRU is a convenience constructor for the lru eviction policy.
func NewLRU(maxSize int, defaultTTL time.Duration) *Backend {
	return New(Config{MaxSize: maxSize, DefaultTTL: defaultTTL, Policy: PolicyLRU})
}

func validateKey(key string) error {
	if key == "" || len(key) > 512 {
		return cacheerr.ErrInvalidKey
	}
	return nil
}

// Get returns the stored value, or found=false on a miss (including
// an expired-but-not-yet-purged entry, which is purged as a side
// effect). It never returns an error for absence; validateKey errors
// are the only error path.
func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.data[key]
	if !ok {
		b.misses++
		return nil, false, nil
	}
	if r.expired(time.Now()) {
		b.removeLocked(r)
		b.misses++
		return nil, false, nil
	}

	b.touchLocked(r)
	b.hits++

	out := make([]byte, len(r.value))
	copy(out, r.value)
	return out, true, nil
}

// Set stores value, overwriting any existing entry. ttl<=0 uses the
// backend's configured default TTL (0 TTL with no default means "no
// expiry").
func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(key, value, ttl)
	return nil
}

// SetIfNotExist stores value only if key is absent (or present but
// expired — expired entries are treated as absent consistently across
// every operation, the same way Get purges them).
func (b *Backend) SetIfNotExist(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.data[key]; ok {
		if !r.expired(time.Now()) {
			return false, nil
		}
		b.removeLocked(r)
	}

	b.setLocked(key, value, ttl)
	return true, nil
}

// Delete removes key, reporting whether it was present (and live).
func (b *Backend) Delete(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.data[key]
	if !ok {
		return false, nil
	}
	expired := r.expired(time.Now())
	b.removeLocked(r)
	return !expired, nil
}

// Clear removes every entry and returns the count removed.
func (b *Backend) Clear(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.data)
	b.data = make(map[string]*record)
	b.order = list.New()
	return n, nil
}

// Exists reports whether key is present and live.
func (b *Backend) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.data[key]
	if !ok {
		return false, nil
	}
	if r.expired(time.Now()) {
		b.removeLocked(r)
		return false, nil
	}
	return true, nil
}

// GetTTL returns the remaining TTL for key, or backend.NoTTL if the
// entry never expires. found=false means key is absent.
func (b *Backend) GetTTL(_ context.Context, key string) (time.Duration, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	now := time.Now()
	if r.expired(now) {
		b.removeLocked(r)
		return 0, false, nil
	}
	if r.expiresAt.IsZero() {
		return backend.NoTTL, true, nil
	}
	return r.expiresAt.Sub(now), true, nil
}

// ListKeys returns the live keys matching prefix (or all live keys if
// prefix is empty). Ordering is unspecified.
func (b *Backend) ListKeys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(b.data))
	var expired []*record
	for k, r := range b.data {
		if r.expired(now) {
			expired = append(expired, r)
			continue
		}
		if prefix == "" || hasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	for _, r := range expired {
		b.removeLocked(r)
	}
	return keys, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// GetSize returns the number of entries currently stored, including
// not-yet-purged expired ones: size is the storage footprint, not the
// live-key count, and eviction respects maxsize at all times.
func (b *Backend) GetSize(context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data), nil
}

// GetStats returns a point-in-time copy of this tier's counters.
func (b *Backend) GetStats(context.Context) (backend.Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return backend.Stats{
		Enabled: true,
		Backend: string(b.policy),
		Size:    len(b.data),
		MaxSize: b.maxSize,
		Hits:    b.hits,
		Misses:  b.misses,
	}, nil
}

// Close is a no-op: there is no goroutine or connection to release.
func (b *Backend) Close() error { return nil }

// setLocked inserts or overwrites key. Caller must hold b.mu.
func (b *Backend) setLocked(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	if r, ok := b.data[key]; ok {
		r.value = stored
		r.expiresAt = expiresAt
		b.touchLocked(r)
		if b.policy == PolicyTTL {
			b.insertByDeadlineLocked(r)
		}
		return
	}

	for len(b.data) >= b.maxSize {
		b.evictLocked()
	}

	r := &record{key: key, value: stored, expiresAt: expiresAt, accessedAt: time.Now()}
	b.insertLocked(r)
}

// insertLocked places a brand-new record into data and the ordering
// structure appropriate to the configured policy.
func (b *Backend) insertLocked(r *record) {
	b.data[r.key] = r
	switch b.policy {
	case PolicyTTL:
		b.insertByDeadlineLocked(r)
	default: // PolicyLRU
		r.element = b.order.PushFront(r)
	}
}

// touchLocked records an access for recency/ordering purposes.
// Caller must hold b.mu.
func (b *Backend) touchLocked(r *record) {
	r.accessedAt = time.Now()
	switch b.policy {
	case PolicyLRU:
		if r.element != nil {
			b.order.MoveToFront(r.element)
		}
	case PolicyTTL:
		// Deadline-ordered position doesn't change on access; only a
		// re-Set (which calls insertByDeadlineLocked again) moves it.
	}
}

// insertByDeadlineLocked threads r into b.order kept sorted with the
// nearest deadline at the back (so evictLocked's list.Back() always
// picks the soonest-to-expire entry); entries with no deadline sort
// as "latest" and live at the front.
func (b *Backend) insertByDeadlineLocked(r *record) {
	if r.element != nil {
		b.order.Remove(r.element)
		r.element = nil
	}

	for e := b.order.Back(); e != nil; e = e.Prev() {
		other := e.Value.(*record)
		if deadlineBefore(r, other) {
			r.element = b.order.InsertAfter(r, e)
			return
		}
	}
	r.element = b.order.PushFront(r)
}

// deadlineBefore reports whether a's deadline sorts before b's under
// the "nearest deadline evicts first, no-deadline evicts last" rule.
func deadlineBefore(a, r *record) bool {
	if a.expiresAt.IsZero() {
		return false // a never expires; it never sorts before anything
	}
	if r.expiresAt.IsZero() {
		return true // r never expires; a (which does) sorts before it
	}
	return a.expiresAt.Before(r.expiresAt)
}

func (b *Backend) evictLocked() {
	e := b.order.Back()
	if e == nil {
		return
	}
	b.removeLocked(e.Value.(*record))
}

func (b *Backend) removeLocked(r *record) {
	if r.element != nil {
		b.order.Remove(r.element)
		r.element = nil
	}
	delete(b.data, r.key)
}

var _ backend.CacheBackend = (*Backend)(nil)
