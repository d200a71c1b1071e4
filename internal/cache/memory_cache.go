package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InMemoryCache is a fallback implementation when Redis is not available.
// It is local to the process, so multiple API instances do not share it.
type InMemoryCache struct {
	logger *zap.Logger
	mu     sync.Mutex
	data   map[string]cacheEntry
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryCache creates an empty in-memory cache
func NewInMemoryCache(logger *zap.Logger) *InMemoryCache {
	return &InMemoryCache{
		logger: logger,
		data:   make(map[string]cacheEntry),
	}
}

// lookup returns the live entry for key, evicting it if expired. Caller holds mu.
func (c *InMemoryCache) lookup(key string) (cacheEntry, bool) {
	entry, exists := c.data[key]
	if !exists {
		return cacheEntry{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = newEntry(value, ttl)
	return nil
}

func (c *InMemoryCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.data[key] = newEntry(value, ttl)
	return true, nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *InMemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(key)
	return ok, nil
}

// DeleteByPattern uses glob matching like Redis SCAN MATCH
func (c *InMemoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleted := 0
	for key := range c.data {
		if matched, _ := path.Match(pattern, key); matched {
			delete(c.data, key)
			deleted++
		}
	}
	c.logger.Debug("Deleted keys by pattern", zap.String("pattern", pattern), zap.Int("count", deleted))
	return nil
}

func newEntry(value []byte, ttl time.Duration) cacheEntry {
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return entry
}
