// Package blobcache provides a byte-budgeted in-memory cache with
// least-recently-used eviction. Two independent instances back the
// gateway: a large one for synthesized audio and a small one for
// commentary text.
package blobcache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// ErrPayloadTooLarge is returned when a single payload exceeds the
// configured byte budget. Oversized payloads are rejected rather than
// admitted, so the budget invariant holds unconditionally.
var ErrPayloadTooLarge = errors.New("payload exceeds cache budget")

// Cache is a byte-budgeted LRU cache.
type Cache struct {
	mu     sync.Mutex
	budget int64
	size   int64

	items map[string]*list.Element
	order *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64
}

type entry struct {
	key     string
	payload []byte
	size    int64
	touched time.Time
}

// New creates a Cache with the given byte budget.
func New(budget int64) *Cache {
	return &Cache{
		budget: budget,
		items:  make(map[string]*list.Element),
		order:  list.New(),
	}
}

// Get returns the payload for key. A hit moves the entry to the
// most-recently-used position.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	e := elem.Value.(*entry)
	e.touched = time.Now()
	c.hits++
	return e.payload, true
}

// Set stores payload under key, evicting least-recently-used entries
// until it fits. A payload larger than the whole budget is rejected.
func (c *Cache) Set(key string, payload []byte) error {
	size := int64(len(payload))
	if size > c.budget {
		return ErrPayloadTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		c.size -= e.size
		c.order.Remove(elem)
		delete(c.items, key)
	}

	for c.size+size > c.budget && c.order.Len() > 0 {
		c.evictOldest()
	}

	e := &entry{key: key, payload: payload, size: size, touched: time.Now()}
	c.items[key] = c.order.PushFront(e)
	c.size += size
	return nil
}

// evictOldest removes the least-recently-used entry. Caller holds c.mu.
func (c *Cache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.items, e.key)
	c.size -= e.size
	c.evictions++
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
}

// Size returns the current total payload bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Capacity:  c.budget,
		Size:      c.size,
		Entries:   len(c.items),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
