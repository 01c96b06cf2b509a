package cache

import (
	"context"
	"sync"
)

// MemoryCache is a process-local Cache used when no Redis is configured.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.data[key]
	if !ok {
		return nil, ErrMiss
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.data[key] = stored
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
