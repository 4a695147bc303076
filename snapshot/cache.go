package snapshot

import (
	"net/url"

	lru "github.com/hashicorp/golang-lru/simplelru"

	"github.com/hazyhaar/pagedrive/location"
)

// DefaultCacheSize is the number of pages kept by default.
const DefaultCacheSize = 10

// Cache keeps the most recently touched page snapshots, keyed by location
// without fragment. Get and Put both touch the key; Has does not.
type Cache struct {
	lru *lru.LRU
}

// NewCache returns a cache holding at most size snapshots. Non-positive
// sizes fall back to DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.NewLRU(size, nil)
	if err != nil {
		// only returned for non-positive sizes
		panic("snapshot: " + err.Error())
	}
	return &Cache{lru: l}
}

// Has reports membership without changing recency.
func (c *Cache) Has(u *url.URL) bool {
	return c.lru.Contains(location.CacheKey(u))
}

// Get returns the snapshot for u and marks it most recently used.
func (c *Cache) Get(u *url.URL) (*PageSnapshot, bool) {
	v, ok := c.lru.Get(location.CacheKey(u))
	if !ok {
		return nil, false
	}
	return v.(*PageSnapshot), true
}

// Put stores s for u, evicting the least recently used entry when full.
func (c *Cache) Put(u *url.URL, s *PageSnapshot) *PageSnapshot {
	c.lru.Add(location.CacheKey(u), s)
	return s
}

// Clear drops every entry.
func (c *Cache) Clear() { c.lru.Purge() }

// Len returns the number of entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Keys returns the keys from least to most recently used.
func (c *Cache) Keys() []string {
	raw := c.lru.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}
