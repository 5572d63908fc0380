// Package cache provides typed in-memory caches over go-cache.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed key/value store with per-entry expiry.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// TTLCache stores values of one type for a fixed time. Expired entries are
// purged every cleanupInterval by go-cache's janitor.
type TTLCache[T any] struct {
	c *gocache.Cache
}

func NewTTLCache[T any](ttl, cleanupInterval time.Duration) *TTLCache[T] {
	return &TTLCache[T]{c: gocache.New(ttl, cleanupInterval)}
}

func (t *TTLCache[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := t.c.Get(key)
	if !ok {
		return zero, false
	}
	data, ok := v.(T)
	if !ok {
		return zero, false
	}
	return data, true
}

func (t *TTLCache[T]) Set(key string, data T) {
	t.c.SetDefault(key, data)
}

func (t *TTLCache[T]) Delete(key string) {
	t.c.Delete(key)
}

// Size counts stored entries, including expired ones not yet purged.
func (t *TTLCache[T]) Size() int {
	return t.c.ItemCount()
}

// Flush drops every entry.
func (t *TTLCache[T]) Flush() {
	t.c.Flush()
}
