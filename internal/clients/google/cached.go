package google

import (
	"context"
	"fmt"
	"time"

	"github.com/movilityai/tripplanner/internal/lib/geo"
	"github.com/movilityai/tripplanner/internal/lib/routing"
)

// RouteCache is the subset of the shared cache used for directions
type RouteCache interface {
	Set(key string, data interface{}, ttl time.Duration, source string) error
	Get(key string, result interface{}) (bool, error)
}

// CachedClient memoizes directions per origin, destination, mode and
// departure bucket. Empty results are cached as well.
type CachedClient struct {
	provider routing.DirectionsProvider
	cache    RouteCache
	ttl      time.Duration
	bucket   time.Duration
}

type cachedRoute struct {
	Found bool                     `json:"found"`
	Route *routing.DirectionsRoute `json:"route,omitempty"`
}

// NewCachedClient wraps provider. Departures within the same bucket share a
// cache entry.
func NewCachedClient(provider routing.DirectionsProvider, cache RouteCache, ttl, bucket time.Duration) *CachedClient {
	if bucket <= 0 {
		bucket = 15 * time.Minute
	}
	return &CachedClient{provider: provider, cache: cache, ttl: ttl, bucket: bucket}
}

// GetRoute serves from cache when possible and stores fresh results
func (c *CachedClient) GetRoute(ctx context.Context, origin, destination geo.Location, mode routing.TravelMode, departure time.Time) (*routing.DirectionsRoute, error) {
	key := c.key(origin, destination, mode, departure)

	var hit cachedRoute
	if found, err := c.cache.Get(key, &hit); err == nil && found {
		if !hit.Found {
			return nil, nil
		}
		return hit.Route, nil
	}

	route, err := c.provider.GetRoute(ctx, origin, destination, mode, departure)
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(key, cachedRoute{Found: route != nil, Route: route}, c.ttl, "directions")
	return route, nil
}

func (c *CachedClient) key(origin, destination geo.Location, mode routing.TravelMode, departure time.Time) string {
	var slot int64
	if !departure.IsZero() {
		slot = departure.Truncate(c.bucket).Unix()
	}
	return fmt.Sprintf("directions:%s:%s:%s:%d", formatLocation(origin), formatLocation(destination), mode, slot)
}
