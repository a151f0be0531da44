package cache

import (
	"container/list"
	"context"
	"sync"
)

type memoryEntry struct {
	key   TileCacheKey
	value TileCacheValue
}

// MemoryCache is a capacity-bounded LRU. Eviction runs on insert and skips
// pinned keys; if every entry is pinned the cache grows past capacity until
// pins are released.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	items    map[TileCacheKey]*list.Element
	lruList  *list.List
	pins     map[TileCacheKey]int
	onEvict  func(TileCacheKey)
}

var _ TileCache = (*MemoryCache)(nil)

func NewMemoryCache(capacity int, onEvict func(TileCacheKey)) *MemoryCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[TileCacheKey]*list.Element),
		lruList:  list.New(),
		pins:     make(map[TileCacheKey]int),
		onEvict:  onEvict,
	}
}

func (c *MemoryCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[k]
	if !ok {
		return TileCacheValue{}, false, nil
	}
	c.lruList.MoveToFront(elem)
	return elem.Value.(*memoryEntry).value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		elem.Value.(*memoryEntry).value = v
		c.lruList.MoveToFront(elem)
		return nil
	}

	c.evictLocked(c.capacity - 1)

	elem := c.lruList.PushFront(&memoryEntry{key: k, value: v})
	c.items[k] = elem
	return nil
}

// evictLocked removes least recently used, unpinned entries until at most
// limit remain.
func (c *MemoryCache) evictLocked(limit int) {
	for elem := c.lruList.Back(); elem != nil && c.lruList.Len() > limit; {
		prev := elem.Prev()
		ent := elem.Value.(*memoryEntry)
		if c.pins[ent.key] == 0 {
			c.lruList.Remove(elem)
			delete(c.items, ent.key)
			if c.onEvict != nil {
				c.onEvict(ent.key)
			}
		}
		elem = prev
	}
}

// Pin protects k from eviction until a matching Unpin. k need not be
// present yet.
func (c *MemoryCache) Pin(k TileCacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[k]++
}

func (c *MemoryCache) Unpin(k TileCacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pins[k] <= 1 {
		delete(c.pins, k)
	} else {
		c.pins[k]--
	}
	c.evictLocked(c.capacity)
}

func (c *MemoryCache) Delete(k TileCacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		c.lruList.Remove(elem)
		delete(c.items, k)
	}
}

func (c *MemoryCache) DeleteSource(_ context.Context, scope, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, elem := range c.items {
		if k.Kind == KindTile && k.Scope == scope && k.SourceID == sourceID {
			c.lruList.Remove(elem)
			delete(c.items, k)
		}
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[TileCacheKey]*list.Element)
	c.lruList = list.New()
}

func (c *MemoryCache) Close() error {
	c.Clear()
	return nil
}
