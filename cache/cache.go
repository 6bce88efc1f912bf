// Package cache provides a generic TTL and size bounded cache.
//
// Writes are idempotent: storing the same key again simply replaces the entry
// with a fresher timestamp, so the only synchronisation is the atomic map.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/saferoute/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// Clock abstracts time so tests can drive expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

type item[V any] struct {
	value     V
	expiresAt time.Time
	seq       uint64
}

type options struct {
	clock   Clock
	maxSize int
	name    string
	janitor time.Duration
}

type Option func(*options)

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMaxSize bounds the number of entries; the oldest insert is evicted first.
func WithMaxSize(n int) Option {
	return func(o *options) { o.maxSize = n }
}

// WithName labels the cache in metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithJanitor starts a goroutine removing expired entries every interval.
func WithJanitor(interval time.Duration) Option {
	return func(o *options) { o.janitor = interval }
}

type Cache[V any] struct {
	items   *xsync.MapOf[string, item[V]]
	ttl     time.Duration
	maxSize int
	clock   Clock
	name    string
	seq     atomic.Uint64

	stop      chan struct{}
	closeOnce sync.Once
}

func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{clock: SystemClock, name: "cache"}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{
		items:   xsync.NewMapOf[string, item[V]](),
		ttl:     ttl,
		maxSize: o.maxSize,
		clock:   o.clock,
		name:    o.name,
		stop:    make(chan struct{}),
	}
	if o.janitor > 0 {
		go c.cleanup(o.janitor)
	}
	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	it, ok := c.items.Load(key)
	if !ok || !c.clock.Now().Before(it.expiresAt) {
		if ok {
			c.items.Delete(key)
		}
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		var zero V
		return zero, false
	}
	metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
	return it.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.items.Store(key, item[V]{
		value:     value,
		expiresAt: c.clock.Now().Add(c.ttl),
		seq:       c.seq.Add(1),
	})
	if c.maxSize > 0 && c.items.Size() > c.maxSize {
		c.evict()
	}
}

func (c *Cache[V]) Delete(key string) {
	c.items.Delete(key)
}

func (c *Cache[V]) Clear() {
	c.items.Clear()
}

// Size returns the number of entries, expired ones included.
func (c *Cache[V]) Size() int {
	return c.items.Size()
}

// Close stops the janitor goroutine if any.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) evict() {
	c.removeExpired()
	for c.items.Size() > c.maxSize {
		var oldestKey string
		var oldestSeq uint64
		found := false
		c.items.Range(func(k string, it item[V]) bool {
			if !found || it.seq < oldestSeq {
				oldestKey, oldestSeq, found = k, it.seq, true
			}
			return true
		})
		if !found {
			return
		}
		c.items.Delete(oldestKey)
	}
}

func (c *Cache[V]) removeExpired() {
	now := c.clock.Now()
	c.items.Range(func(k string, it item[V]) bool {
		if !now.Before(it.expiresAt) {
			c.items.Delete(k)
		}
		return true
	})
}

func (c *Cache[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}
