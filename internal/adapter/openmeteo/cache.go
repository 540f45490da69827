package openmeteo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedProvider wraps a WeatherProvider with an in-memory LRU cache whose
// entries expire after a fixed TTL.
type CachedProvider struct {
	inner   domain.WeatherProvider
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a weather provider.
func NewCachedProvider(inner domain.WeatherProvider, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedProvider {
	return newCachedProvider(inner, maxEntries, ttl, metrics, clockwork.NewRealClock())
}

func newCachedProvider(inner domain.WeatherProvider, maxEntries int, ttl time.Duration, metrics *observability.Metrics, clock clockwork.Clock) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

// FetchCurrent serves a fresh cached snapshot for the coordinates or asks the
// inner provider. Coordinates are keyed at 4 decimal places (~11 m).
func (c *CachedProvider) FetchCurrent(ctx context.Context, lat, lon float64) (domain.WeatherSnapshot, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	now := c.clock.Now()

	if e, ok := c.cache.get(key); ok {
		if now.Sub(e.fetchedAt) < c.ttl {
			c.metrics.WeatherCache.WithLabelValues("hit").Inc()
			return e.snapshot, nil
		}
		c.cache.delete(key)
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	snapshot, err := c.inner.FetchCurrent(ctx, lat, lon)
	if err != nil {
		// Failures are never cached so the next request retries upstream.
		return snapshot, err
	}
	c.cache.put(key, cachedSnapshot{snapshot: snapshot, fetchedAt: now})
	return snapshot, nil
}

type cachedSnapshot struct {
	snapshot  domain.WeatherSnapshot
	fetchedAt time.Time
}

// lruCache is a simple thread-safe LRU cache for weather snapshots.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value cachedSnapshot
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (cachedSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cachedSnapshot{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value cachedSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
