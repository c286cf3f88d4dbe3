// Package cache is an in-process TTL+LRU cache for expensive listing and
// aggregation results. Safe for concurrent use.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/agenttrail/agenttrail/internal/metrics"
)

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

// Cache evicts by both time-to-live and recency. A Get older than the TTL
// is a miss and evicts the entry; a Set at capacity evicts the
// least-recently-used entry first.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	ll      *list.List // front = most recently used
	items   map[string]*list.Element
	now     func() time.Time
}

// New builds a cache with the given TTL and capacity.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the cached value and whether it was a live hit.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		metrics.CacheMisses.Inc()
		return nil, false
	}

	e := el.Value.(*entry)
	if c.now().Sub(e.storedAt) > c.ttl {
		c.removeElement(el)
		metrics.CacheMisses.Inc()
		return nil, false
	}

	c.ll.MoveToFront(el)
	metrics.CacheHits.Inc()
	return e.value, true
}

// Set stores a value, refreshing its TTL and recency. Inserting at
// capacity evicts the least-recently-used entry.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.storedAt = c.now()
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.maxSize {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	el := c.ll.PushFront(&entry{key: key, value: value, storedAt: c.now()})
	c.items[key] = el
}

// Invalidate removes every key containing pattern as a substring; an
// empty pattern clears everything. Returns the number of removed entries.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := c.ll.Len()
		c.ll.Init()
		c.items = make(map[string]*list.Element)
		return n
	}

	removed := 0
	for key, el := range c.items {
		if strings.Contains(key, pattern) {
			c.removeElement(el)
			removed++
		}
	}
	return removed
}

// Len reports the current number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// removeElement drops an element. Caller holds c.mu.
func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
