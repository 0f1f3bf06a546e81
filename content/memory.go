package content

import (
	"context"
	"sync"
)

// MemoryCatalog is an in-memory Catalog. The catalog is read-mostly, so a
// single RWMutex over the item map is enough.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{items: make(map[string]*Item)}
}

// Put inserts or replaces a content item.
func (c *MemoryCatalog) Put(item *Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

// Item returns the content item with the given ID, or nil when absent.
func (c *MemoryCatalog) Item(_ context.Context, id string) (*Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, nil
	}
	return item, nil
}

// Len returns the number of items in the catalog.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
