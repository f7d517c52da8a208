// Package idempotency caches operation results under caller-supplied
// keys so retried requests replay the original outcome instead of
// re-executing. Only successes are cached; a failed operation leaves no
// record and the next call with the same key runs fresh.
package idempotency

import (
	"context"
	"strings"
	"sync"
	"time"

	lifecycle "github.com/goliatone/go-lifecycle"
)

// DefaultTTL is how long cached results replay when no TTL is given.
const DefaultTTL = 10 * time.Minute

type record[T any] struct {
	value     T
	expiresAt time.Time
}

// Cache stores operation results keyed by idempotency key. A per-key
// lock collapses concurrent callers of the same key into one execution;
// distinct keys never contend.
type Cache[T any] struct {
	mu      sync.RWMutex
	records map[string]record[T]
	locker  *keyLocker
	ttl     time.Duration
	now     func() time.Time
	logger  lifecycle.Logger
}

type Option[T any] func(*Cache[T])

// WithTTL sets the replay window for cached results.
func WithTTL[T any](ttl time.Duration) Option[T] {
	return func(c *Cache[T]) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source. Tests use this to expire
// records without sleeping.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger[T any](l lifecycle.Logger) Option[T] {
	return func(c *Cache[T]) {
		c.logger = lifecycle.NormalizeLogger(l)
	}
}

// New constructs an empty cache.
func New[T any](opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		records: make(map[string]record[T]),
		locker:  newKeyLocker(),
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  lifecycle.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunOnce executes op at most once per key within ttl. A cached
// unexpired result is returned without invoking op. An empty key
// bypasses the cache entirely, and ttl <= 0 falls back to the cache
// default. Errors from op are returned but never cached.
func (c *Cache[T]) RunOnce(ctx context.Context, key string, ttl time.Duration, op func(context.Context) (T, error)) (T, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return op(ctx)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	unlock := c.locker.Lock(key)
	defer unlock()

	if cached, ok := c.lookup(key); ok {
		lifecycle.WithLoggerFields(c.logger, map[string]any{"idempotency_key": key}).
			Debug("replaying cached result")
		return cached, nil
	}

	value, err := op(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.records[key] = record[T]{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return value, nil
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[key]
	if !ok || c.now().After(rec.expiresAt) {
		var zero T
		return zero, false
	}
	return rec.value, true
}

// Prune drops expired records and returns how many were removed.
func (c *Cache[T]) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, rec := range c.records {
		if now.After(rec.expiresAt) {
			delete(c.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the record count, expired ones included until pruned.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// keyLocker serializes callers per key while letting distinct keys
// proceed concurrently.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLockRef
}

type keyLockRef struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLockRef)}
}

func (l *keyLocker) Lock(key string) func() {
	l.mu.Lock()
	ref, ok := l.locks[key]
	if !ok || ref == nil {
		ref = &keyLockRef{}
		l.locks[key] = ref
	}
	ref.refs++
	l.mu.Unlock()

	ref.mu.Lock()
	return func() {
		ref.mu.Unlock()
		l.mu.Lock()
		ref.refs--
		if ref.refs <= 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
