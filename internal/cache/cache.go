// Package cache is the TTL-keyed response cache in front of the provider
// clients. Entries expire lazily on read; there is no background sweeper and
// no request coalescing; concurrent misses for the same key may fetch twice.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Class selects which TTL an entry gets.
type Class int

const (
	// ClassDefault is the short-lived class for auxiliary lookups such as
	// geocoding results.
	ClassDefault Class = iota
	// ClassWeather is the longer class for normalized forecast series.
	ClassWeather
)

// Cache is a concurrency-safe in-memory TTL store keyed by composite
// location+source strings. Construct once at startup and inject.
type Cache struct {
	store      *gocache.Cache
	defaultTTL time.Duration
	weatherTTL time.Duration
}

// New creates a Cache with the two configured TTL classes. Sweeping is
// disabled so expiry is only ever checked on read.
func New(defaultTTL, weatherTTL time.Duration) *Cache {
	return &Cache{
		store:      gocache.New(defaultTTL, 0),
		defaultTTL: defaultTTL,
		weatherTTL: weatherTTL,
	}
}

// Key builds the composite cache key. Distinct sources for the same location
// never collide.
func Key(locationKey, source string) string {
	return locationKey + ":" + source
}

// Get returns the cached payload for key, or false on miss or expiry.
func (c *Cache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

// Set stores payload under key with the TTL of the given class.
func (c *Cache) Set(key string, payload interface{}, class Class) {
	ttl := c.defaultTTL
	if class == ClassWeather {
		ttl = c.weatherTTL
	}
	c.store.Set(key, payload, ttl)
}

// Invalidate drops a single entry.
func (c *Cache) Invalidate(key string) {
	c.store.Delete(key)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.store.Flush()
}

// Len reports the number of entries, including not-yet-evicted expired ones.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
