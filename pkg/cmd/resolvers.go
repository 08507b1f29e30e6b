package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/veriflow-io/veriflow/pkg/items"
	"github.com/veriflow-io/veriflow/pkg/selectors"
)

const itemCacheTTL = 5 * time.Minute

// NewItemResolver builds the business-object resolver from a JSON document
// mapping item ids to objects, optionally fronted by a Redis cache, always
// fronted by an in-process cache.
func NewItemResolver(itemsPath, redisURL string) (items.Resolver, error) {
	data, err := os.ReadFile(itemsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file %s: %w", itemsPath, err)
	}

	var static items.StaticResolver
	if err := json.Unmarshal(data, &static); err != nil {
		return nil, fmt.Errorf("failed to decode items file %s: %w", itemsPath, err)
	}

	var resolver items.Resolver = static

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		resolver = items.NewRedisCache(resolver, redis.NewClient(opts), itemCacheTTL)
	}

	return items.NewMemoryCache(resolver, itemCacheTTL), nil
}

// NewGroupResolver builds the account-group resolver from a JSON document
// mapping group ids to account lists.
func NewGroupResolver(groupsPath string) (selectors.GroupResolver, error) {
	data, err := os.ReadFile(groupsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file %s: %w", groupsPath, err)
	}

	var static selectors.StaticGroupResolver
	if err := json.Unmarshal(data, &static); err != nil {
		return nil, fmt.Errorf("failed to decode groups file %s: %w", groupsPath, err)
	}

	return static, nil
}

// LoadConstants reads the rule constants document; an empty path yields no
// constants.
func LoadConstants(constantsPath string) (map[string]any, error) {
	if constantsPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(constantsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read constants file %s: %w", constantsPath, err)
	}

	var constants map[string]any
	if err := json.Unmarshal(data, &constants); err != nil {
		return nil, fmt.Errorf("failed to decode constants file %s: %w", constantsPath, err)
	}

	return constants, nil
}
