package items

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache decorates a resolver with a shared Redis cache, so several
// engine processes reuse the same resolved items between recalculation runs.
type RedisCache struct {
	next   Resolver
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps a resolver with a Redis-backed cache.
func NewRedisCache(next Resolver, client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: "veriflow:item:",
	}
}

func (r *RedisCache) ReadItem(ctx context.Context, itemID string) (map[string]any, error) {
	payload, err := r.client.Get(ctx, r.prefix+itemID).Bytes()
	if err == nil {
		var item map[string]any
		if err := json.Unmarshal(payload, &item); err == nil {
			return item, nil
		}
		// Corrupt cache entry: fall through and re-resolve.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read item %s from cache: %w", itemID, err)
	}

	item, err := r.next.ReadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item %s for cache: %w", itemID, err)
	}

	if err := r.client.Set(ctx, r.prefix+itemID, encoded, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to cache item %s: %w", itemID, err)
	}

	return item, nil
}

// Invalidate drops one item from the shared cache.
func (r *RedisCache) Invalidate(ctx context.Context, itemID string) error {
	if err := r.client.Del(ctx, r.prefix+itemID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate item %s: %w", itemID, err)
	}

	return nil
}
