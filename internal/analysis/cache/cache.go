// Package cache memoizes synchronous single-module analyses so repeat
// requests for the same page skip the provider fan-out.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/siteintel/analyzer/internal/analysis"
)

type entry struct {
	result  analysis.ModuleResult
	expires time.Time
}

// Cache is a TTL-bounded in-memory result cache keyed by a digest of
// the module, URL, and params.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	hasher  analysis.Hasher
	clock   analysis.Clock
	ttl     time.Duration
}

// New builds a Cache. A non-positive ttl defaults to one hour.
func New(hasher analysis.Hasher, clock analysis.Clock, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries: make(map[string]entry),
		hasher:  hasher,
		clock:   clock,
		ttl:     ttl,
	}
}

// Key derives the cache key for one module request. Params are part of
// the key so requests with different knobs never collide.
func (c *Cache) Key(module analysis.Module, url string, params analysis.ModuleParams) (string, error) {
	fingerprint, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint params: %w", err)
	}
	return c.hasher.Hash([]byte(fmt.Sprintf("%s|%s|%s", module, url, fingerprint)))
}

// Get returns the cached result for key if present and unexpired.
func (c *Cache) Get(key string) (analysis.ModuleResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock.Now().After(e.expires) {
		return analysis.ModuleResult{}, false
	}
	return e.result, true
}

// Put stores result under key. Failed results are not cached, so a
// transient provider outage does not pin failures for the TTL.
func (c *Cache) Put(key string, result analysis.ModuleResult) {
	if result.Failed {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{result: result, expires: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Sweep drops expired entries and reports how many were removed.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
