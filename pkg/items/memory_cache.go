package items

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache decorates a resolver with an in-process TTL cache. Suitable for
// the interactive path; batch recalculation builds its own snapshot instead.
type MemoryCache struct {
	next  Resolver
	cache *gocache.Cache
}

// NewMemoryCache wraps a resolver with an in-memory cache. Expired entries
// are purged at twice the TTL.
func NewMemoryCache(next Resolver, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (m *MemoryCache) ReadItem(ctx context.Context, itemID string) (map[string]any, error) {
	if cached, ok := m.cache.Get(itemID); ok {
		if item, ok := cached.(map[string]any); ok {
			return item, nil
		}
	}

	item, err := m.next.ReadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	m.cache.SetDefault(itemID, item)

	return item, nil
}

// Invalidate drops one item from the cache, e.g. after a business-data edit.
func (m *MemoryCache) Invalidate(itemID string) {
	m.cache.Delete(itemID)
}

// Flush drops every cached item.
func (m *MemoryCache) Flush() {
	m.cache.Flush()
}
