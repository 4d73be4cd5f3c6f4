package cachutil

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes fallible loads by key.
//
// Concurrent loads of the same key are suppressed so that only one load is
// in flight per key; the others wait for and share its result. Failed loads
// are not stored.
type Cache[V any] struct {
	items *ttlcache.Cache[string, V]
	group singleflight.Group
}

// New returns a cache whose entries expire ttl after they were last used.
// A zero capacity means unbounded.
func New[V any](ttl time.Duration, capacity uint64) *Cache[V] {
	opts := []ttlcache.Option[string, V]{ttlcache.WithTTL[string, V](ttl)}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, V](capacity))
	}
	return &Cache[V]{items: ttlcache.New[string, V](opts...)}
}

type loaded[V any] struct {
	value  V
	cached bool
}

// GetOrLoad returns the value stored under key or calls load to produce it.
// cached reports whether the value came from the cache.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (value V, cached bool, err error) {
	if item := c.items.Get(key); item != nil {
		return item.Value(), true, nil
	}
	res, err, shared := c.group.Do(key, func() (any, error) {
		if item := c.items.Get(key); item != nil {
			return loaded[V]{value: item.Value(), cached: true}, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.items.Set(key, v, ttlcache.DefaultTTL)
		return loaded[V]{value: v}, nil
	})
	if err != nil {
		return value, false, err
	}
	l := res.(loaded[V])
	return l.value, l.cached || shared, nil
}

// Delete drops key.
func (c *Cache[V]) Delete(key string) { c.items.Delete(key) }

// Len returns the number of stored entries, expired ones included until
// they are collected.
func (c *Cache[V]) Len() int { return c.items.Len() }

// Prune drops expired entries.
func (c *Cache[V]) Prune() { c.items.DeleteExpired() }
