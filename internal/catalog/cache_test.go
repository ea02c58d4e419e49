package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
)

func TestCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := catalog.NewCache(client, time.Minute)
	ctx := context.Background()

	var missed catalog.Catalog
	hit, err := cache.Get(ctx, "residential", &missed)
	require.NoError(t, err)
	require.False(t, hit)

	seeded, err := catalog.SeedCatalogs()
	require.NoError(t, err)
	var residential catalog.Catalog
	for _, c := range seeded {
		if c.PropertyType == "residential" {
			residential = c
		}
	}
	require.NoError(t, cache.Set(ctx, residential))

	var cached catalog.Catalog
	hit, err = cache.Get(ctx, "residential", &cached)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, len(residential.Categories), len(cached.Categories))

	require.NoError(t, cache.Invalidate(ctx, "residential"))
	hit, err = cache.Get(ctx, "residential", &cached)
	require.NoError(t, err)
	require.False(t, hit)
}
