package openapi

import (
	"sync"
	"time"
)

// CacheConfig holds configuration for document caching.
type CacheConfig struct {
	// TTL is the time-to-live for cached documents.
	// Set to 0 for no expiration (invalidation on upload/delete only)
	TTL time.Duration

	// Observe, when set, is called with the outcome of every lookup.
	Observe func(hit bool)
}

// DefaultCacheConfig returns the defaults used by the server.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

type cacheKey struct {
	service string
	sheet   string
}

type cacheEntry struct {
	doc      *Document
	cachedAt time.Time
}

// Cache keeps generated documents per service and table. Documents are held
// without a servers block, so the number of entries is bounded by the tables
// of the registered services whatever hosts clients send.
// Thread-safe for concurrent access
type Cache struct {
	entries    map[cacheKey]cacheEntry
	generation uint64
	config     CacheConfig
	now        func() time.Time
	mu         sync.RWMutex
}

// NewCache creates an empty document cache.
func NewCache(config CacheConfig) *Cache {
	return &Cache{
		entries: make(map[cacheKey]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Generation returns the invalidation counter. Read it before looking up the
// service a document is built from and pass it to GetOrBuild.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// GetOrBuild returns the cached document or builds a new one. The built
// document is stored only when no invalidation happened since the caller
// read since, so a document built from a replaced service is never kept.
// Build errors are not cached.
func (c *Cache) GetOrBuild(service, sheet string, since uint64, build func() (*Document, error)) (*Document, error) {
	key := cacheKey{service, sheet}
	if doc, ok := c.get(key); ok {
		c.observe(true)
		return doc, nil
	}
	c.observe(false)

	doc, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == since {
		c.entries[key] = cacheEntry{doc: doc, cachedAt: c.now()}
	}
	return doc, nil
}

func (c *Cache) get(key cacheKey) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && c.now().Sub(e.cachedAt) > c.config.TTL {
		return nil, false
	}
	return e.doc, true
}

func (c *Cache) observe(hit bool) {
	if c.config.Observe != nil {
		c.config.Observe(hit)
	}
}

// Invalidate drops every document of a service and advances the generation.
func (c *Cache) Invalidate(service string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	for k := range c.entries {
		if k.service == service {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached documents, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
