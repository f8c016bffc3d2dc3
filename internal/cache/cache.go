package cache

import "sync"

// Cache is a thread-safe LRU cache bounded by entry count. When an insert
// pushes the cache past its limit, the least recently used entry goes.
//
// Cache must not be copied after creation.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	order   *lruList[K]
	limit   int

	hits, misses, evictions uint64
}

type entry[K comparable, V any] struct {
	value V
	node  *lruNode[K]
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Len       int
	Limit     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// New creates a cache holding at most limit entries.
// A limit of 0 or less means unbounded.
func New[K comparable, V any](limit int) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		order:   newLRUList[K](),
		limit:   limit,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(e.node)
	return e.value, true
}

// Set stores value under key, replacing any previous value.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. create runs under the cache lock and must not call back into c.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.hits++
		c.order.MoveToFront(e.node)
		return e.value, nil
	}
	c.misses++
	v, err := create()
	if err != nil {
		return v, err
	}
	c.setLocked(key, v)
	return v, nil
}

func (c *Cache[K, V]) setLocked(key K, value V) {
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.order.MoveToFront(e.node)
		return
	}
	c.entries[key] = &entry[K, V]{value: value, node: c.order.PushFront(key)}
	for c.limit > 0 && c.order.Len() > c.limit {
		oldest, ok := c.order.RemoveOldest()
		if !ok {
			break
		}
		delete(c.entries, oldest)
		c.evictions++
	}
}

// Delete removes key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.node)
		delete(c.entries, key)
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.order.Clear()
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the current counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:       len(c.entries),
		Limit:     c.limit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
