package service

import (
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/gitbridge/git"
)

// ttlCache is a mutex-guarded map with per-entry expiry.
// Expired entries are dropped lazily on lookup; the
// working set is bounded by the number of distinct
// queries within one TTL window, so no sweeper runs.
type ttlCache struct {
	mu      sync.Mutex
	clock   func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func newTTLCache(clock func() time.Time) *ttlCache {
	return &ttlCache{
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ttlCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.clock().After(e.expires) {
		delete(c.entries, key)

		return nil, false
	}

	return e.value, true
}

func (c *ttlCache) set(
	key string,
	value any,
	ttl time.Duration,
) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		value:   value,
		expires: c.clock().Add(ttl),
	}
}

func (c *ttlCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// cacheKey builds "<platform>/<topic>/<path>?<params>".
// Params are serialized so that distinct listing options
// never collide on one entry.
func cacheKey(
	platform git.Platform,
	topic string,
	path string,
	params any,
) string {
	key := string(platform) + "/" + topic + "/" + path

	if params == nil {
		return key
	}

	raw, err := json.Marshal(params)
	if err != nil {
		// Marshal of plain option structs cannot fail;
		// degrade to an uncacheable unique-ish key.
		return key + "?unmarshalable"
	}

	return key + "?" + string(raw)
}

// cached serves a read from the cache or runs fetch and
// stores the result. Errors are never cached.
func cached[T any](
	s *Service,
	key string,
	ttl time.Duration,
	fetch func() (T, error),
) (T, error) {
	if v, ok := s.cache.get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err := fetch()
	if err != nil {
		var zero T

		return zero, err
	}

	s.cache.set(key, v, ttl)

	return v, nil
}
