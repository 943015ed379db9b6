package embedding

import (
	"slices"
	"sync"
)

// QueryCache keeps the most recently used query embeddings in memory. Values are copied
// on the way in and out, so callers may modify what they get back.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*queryNode
	// head.next is the most recently used entry, head.prev the least.
	head         queryNode
	hits, misses uint64
}

type queryNode struct {
	key        string
	vec        []float32
	prev, next *queryNode
}

// NewQueryCache returns a cache holding up to capacity queries. A capacity <= 0 disables it.
func NewQueryCache(capacity int) *QueryCache {
	c := &QueryCache{capacity: capacity, entries: make(map[string]*queryNode)}
	c.head.prev, c.head.next = &c.head, &c.head
	return c
}

func (c *QueryCache) Get(query string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[query]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.unlink(n)
	c.pushFront(n)
	return slices.Clone(n.vec), true
}

// Set stores vec for query, evicting the least recently used entry when full.
func (c *QueryCache) Set(query string, vec []float32) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.entries[query]; ok {
		n.vec = slices.Clone(vec)
		c.unlink(n)
		c.pushFront(n)
		return
	}
	n := &queryNode{key: query, vec: slices.Clone(vec)}
	c.entries[query] = n
	c.pushFront(n)
	if len(c.entries) > c.capacity {
		lru := c.head.prev
		c.unlink(lru)
		delete(c.entries, lru.key)
	}
}

func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns lookup hits and misses since creation.
func (c *QueryCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *QueryCache) unlink(n *queryNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

func (c *QueryCache) pushFront(n *queryNode) {
	n.prev = &c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}
