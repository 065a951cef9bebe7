package manager

import (
	"sync"
	"time"

	"github.com/robso86/jsonschema-mapper/internal/importer"
)

// Cache holds one importer per document URI. Implementations must be safe
// for concurrent use.
type Cache interface {
	Load(uri string) (*importer.Importer, bool)
	// LoadOrStore returns the existing importer for uri if present.
	// Otherwise it stores imp and returns it with loaded == false.
	LoadOrStore(uri string, imp *importer.Importer) (actual *importer.Importer, loaded bool)
	Store(uri string, imp *importer.Importer)
	Delete(uri string) bool
	Len() int
}

type cacheEntry struct {
	imp      *importer.Importer
	storedAt time.Time
}

// MemoryCache is an in-process Cache. With a positive TTL, a completed
// importer older than the TTL is dropped on its next lookup; importers
// still running are never expired. A zero TTL keeps entries until they are
// deleted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Load(uri string) (*importer.Importer, bool) {
	c.mu.RLock()
	e, ok := c.entries[uri]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.mu.Lock()
		// Only drop the entry we looked at; it may have been replaced.
		if cur, ok := c.entries[uri]; ok && cur.imp == e.imp {
			delete(c.entries, uri)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.imp, true
}

func (c *MemoryCache) LoadOrStore(uri string, imp *importer.Importer) (*importer.Importer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[uri]; ok && !c.expired(e) {
		return e.imp, true
	}
	c.entries[uri] = cacheEntry{imp: imp, storedAt: c.now()}
	return imp, false
}

func (c *MemoryCache) Store(uri string, imp *importer.Importer) {
	c.mu.Lock()
	c.entries[uri] = cacheEntry{imp: imp, storedAt: c.now()}
	c.mu.Unlock()
}

func (c *MemoryCache) Delete(uri string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[uri]
	delete(c.entries, uri)
	return ok
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cached URIs and their importers.
func (c *MemoryCache) Snapshot() map[string]*importer.Importer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*importer.Importer, len(c.entries))
	for uri, e := range c.entries {
		out[uri] = e.imp
	}
	return out
}

func (c *MemoryCache) expired(e cacheEntry) bool {
	if c.ttl <= 0 || e.imp.ReadyState() != importer.Complete {
		return false
	}
	return c.now().Sub(e.storedAt) >= c.ttl
}
