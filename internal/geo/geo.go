// Package geo provides memoized IP geolocation for the analysis run.
// The cache is an explicit, injectable, run-scoped object: batch analyses
// can share one cache or use independent caches deliberately.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/metrics"
)

// ErrUnavailable marks an address whose location could not be resolved.
// The failure is cached for the run so a slow or failing provider degrades
// the affected indicator to not-applicable instead of being retried.
var ErrUnavailable = errors.New("geo: location unavailable")

// Location is a resolved IP geolocation
type Location struct {
	IPAddress   string  `json:"ip_address"`
	City        string  `json:"city"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ASNumber    string  `json:"as_number,omitempty"`
	Org         string  `json:"organization,omitempty"`
}

// Resolver looks up the location of a single address
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*Location, error)
}

// Cache memoizes resolver results for the duration of a run. First writes
// are serialized per cache; reads after population are lock-protected and
// cheap. An optional redis client provides a TTL-bounded L2 shared across
// service instances.
type Cache struct {
	resolver Resolver
	redis    *redis.Client
	ttl      time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	loc         *Location
	unavailable bool
}

// NewCache creates a run-scoped geo cache. redisClient may be nil.
func NewCache(resolver Resolver, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		resolver: resolver,
		redis:    redisClient,
		ttl:      ttl,
		logger:   logger.With(zap.String("component", "geo_cache")),
		entries:  make(map[string]cacheEntry),
	}
}

// Lookup resolves an address, consulting the in-run cache, then redis,
// then the resolver. A resolver failure is cached as unavailable and
// returned as ErrUnavailable for the rest of the run.
func (c *Cache) Lookup(ctx context.Context, ip string) (*Location, error) {
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("geo: invalid address %q", ip)
	}

	c.mu.RLock()
	entry, ok := c.entries[ip]
	c.mu.RUnlock()
	if ok {
		if entry.unavailable {
			return nil, ErrUnavailable
		}
		return entry.loc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the write lock: another goroutine may have
	// populated the key while we waited.
	if entry, ok := c.entries[ip]; ok {
		if entry.unavailable {
			return nil, ErrUnavailable
		}
		return entry.loc, nil
	}

	if loc := c.fromRedis(ctx, ip); loc != nil {
		c.entries[ip] = cacheEntry{loc: loc}
		metrics.RecordExternalLookup("geo", "hit", 0)
		return loc, nil
	}

	start := time.Now()
	loc, err := c.resolver.Resolve(ctx, ip)
	if err != nil {
		c.entries[ip] = cacheEntry{unavailable: true}
		metrics.RecordExternalLookup("geo", "unavailable", time.Since(start))
		c.logger.Info("Geo lookup unavailable, caching sentinel",
			zap.String("ip", ip),
			zap.Error(err),
		)
		return nil, ErrUnavailable
	}

	c.entries[ip] = cacheEntry{loc: loc}
	metrics.RecordExternalLookup("geo", "miss", time.Since(start))
	c.toRedis(ctx, ip, loc)

	return loc, nil
}

// Reset discards all cached entries, forcing a rebuild on next lookup
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) fromRedis(ctx context.Context, ip string) *Location {
	if c.redis == nil {
		return nil
	}
	cached, err := c.redis.Get(ctx, "geo:"+ip).Result()
	if err != nil {
		return nil
	}
	var loc Location
	if json.Unmarshal([]byte(cached), &loc) != nil {
		return nil
	}
	return &loc
}

func (c *Cache) toRedis(ctx context.Context, ip string, loc *Location) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, "geo:"+ip, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write geo cache to redis", zap.Error(err))
	}
}
