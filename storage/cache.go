package storage

import (
	"context"
	"sync"
)

// Cache is a read-through Store that keeps fetched objects in memory for the
// duration of an analysis. Entries are keyed by content identity (object key
// plus the etag observed at listing time), so a changed object is never
// served stale. Cached data is shared and must be treated as read-only.
type Cache struct {
	inner Store

	mu    sync.Mutex
	etags map[string]string
	data  map[string][]byte
}

func NewCache(inner Store) *Cache {
	return &Cache{
		inner: inner,
		etags: make(map[string]string),
		data:  make(map[string][]byte),
	}
}

func (c *Cache) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects, err := c.inner.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, obj := range objects {
		c.etags[obj.Key] = obj.ETag
	}
	c.mu.Unlock()

	return objects, nil
}

func (c *Cache) Read(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	id := key + "@" + c.etags[key]
	if data, ok := c.data[id]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := c.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.data[id] = data
	c.mu.Unlock()

	return data, nil
}
