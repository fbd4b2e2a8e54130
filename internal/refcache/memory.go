package refcache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMaxEntries = 64

type memoryCache struct {
	mu    sync.Mutex
	max   int
	ttl   time.Duration
	now   func() time.Time
	order *list.List
	items map[string]*list.Element
}

type memoryEntry struct {
	key       string
	data      []byte
	expiresAt time.Time
}

// NewMemory returns an LRU cache holding at most maxEntries values.
func NewMemory(maxEntries int) Cache {
	return NewMemoryTTL(maxEntries, 0)
}

// NewMemoryTTL is NewMemory with entries that expire ttl after their last
// Put. Zero ttl keeps them until evicted.
func NewMemoryTTL(maxEntries int, ttl time.Duration) Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if ttl < 0 {
		ttl = 0
	}
	return &memoryCache{
		max:   maxEntries,
		ttl:   ttl,
		now:   time.Now,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	return clone(entry.data), true, nil
}

func (c *memoryCache) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.data = clone(data)
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return nil
	}

	c.items[key] = c.order.PushFront(&memoryEntry{key: key, data: clone(data), expiresAt: expiresAt})
	for c.order.Len() > c.max {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*memoryEntry).key)
	}
	return nil
}

func (c *memoryCache) Close() error {
	return nil
}

// Len is used by tests and stats logging.
func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
