// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package prompts

import (
	"strings"
	"sync"
	"time"
)

// versionSeparator joins a prompt name and a pinned version in cache keys.
const versionSeparator = "@"

// Cache is an in-memory TTL cache of raw prompt templates.
//
// Entries are trusted only while now < expiresAt. Expired entries are left in
// place until they are overwritten or invalidated.
//
// Example:
//
//	cache := prompts.NewCache()
//	cache.Store("greeting", "Hello {name}", 5*time.Minute)
//	raw, ok := cache.Get("greeting")
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time

	// gen advances on every invalidation.
	gen uint64

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// CacheStats reports cache usage.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if it has not expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expiresAt) {
		c.hits++
		return entry.value, true
	}
	c.misses++
	return "", false
}

// Store caches value for ttl. A non-positive ttl stores nothing.
func (c *Cache) Store(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// StoreIfGeneration stores value only when no invalidation happened since
// gen was read with Generation. It reports whether the value was stored.
func (c *Cache) StoreIfGeneration(key, value string, ttl time.Duration, gen uint64) bool {
	if ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return true
}

// Generation returns the invalidation counter.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Invalidate removes the entry for name and every versioned entry of name.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++

	prefix := name + versionSeparator
	for key := range c.entries {
		if key == name || strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]cacheEntry)
}

// Stats returns hit/miss counters and the number of stored entries,
// expired ones included.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// ResetStats resets hit/miss counters to zero.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
}

// cacheKey builds the key for a prompt, optionally pinned to a version.
func cacheKey(name, version string) string {
	if version == "" {
		return name
	}
	return name + versionSeparator + version
}
