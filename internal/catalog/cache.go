package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis helpers for catalog JSON payloads. A nil client disables
// caching without changing call sites.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(propertyType string) string {
	return "catalog:" + propertyType
}

// Get unmarshals the cached catalog for a property type. It reports whether
// the key existed.
func (c *Cache) Get(ctx context.Context, propertyType string, dst *Catalog) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, cacheKey(propertyType)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores the catalog with the configured TTL.
func (c *Cache) Set(ctx context.Context, cat Catalog) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(cat.PropertyType), data, c.ttl).Err()
}

// Invalidate drops the cached catalog for a property type after admin edits.
func (c *Cache) Invalidate(ctx context.Context, propertyType string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(propertyType)).Err()
}
