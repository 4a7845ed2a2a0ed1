package client

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheTTL applies to cached GET responses unless overridden per
// request.
const DefaultCacheTTL = 5 * time.Minute

// cacheEntry is one cached response with its absolute expiry.
type cacheEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// ResponseCache is the offline fallback for GET responses. It is read only
// when a live request fails with a network error; HTTP error statuses never
// fall back here. Expiry is passive at read time plus an active prune on
// client start; there is no background timer.
type ResponseCache struct {
	store  Store
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewResponseCache creates a cache over the given store, restoring any
// persisted entries and pruning expired ones. State persisted by an
// incompatible SDK version is discarded.
func NewResponseCache(store Store, logger zerolog.Logger) *ResponseCache {
	c := &ResponseCache{
		store:   store,
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}

	if raw, ok := c.store.Get(keyResponseCache); ok {
		var restored map[string]cacheEntry
		if unmarshalEnvelope(raw, &restored) {
			c.entries = restored
		} else {
			c.logger.Warn().Msg("discarding response cache persisted by an incompatible version")
			_ = c.store.Delete(keyResponseCache)
		}
	}

	c.ClearExpired()
	return c
}

// Get returns the cached value for key if present and unexpired.
func (c *ResponseCache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.persistLocked()
		return nil, false
	}
	return entry.Value, true
}

// Set caches value under key for ttl. A non-positive ttl uses the default.
func (c *ResponseCache) Set(key string, value json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cpy := make(json.RawMessage, len(value))
	copy(cpy, value)
	c.entries[key] = cacheEntry{
		Value:     cpy,
		ExpiresAt: time.Now().Add(ttl),
	}
	c.persistLocked()
}

// ClearExpired removes every expired entry and returns how many it pruned.
func (c *ResponseCache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	pruned := 0
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			pruned++
		}
	}
	if pruned > 0 {
		c.persistLocked()
	}
	return pruned
}

// Len returns the number of entries, including any not yet expired-checked.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) persistLocked() {
	data, err := marshalEnvelope(c.entries)
	if err == nil {
		err = c.store.Set(keyResponseCache, data)
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to persist response cache")
	}
}

// cacheKey canonicalizes a path and query into a stable cache key. Query
// parameters are sorted so equivalent requests share an entry.
func cacheKey(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('?')
	for i, k := range keys {
		vals := append([]string{}, query[k]...)
		sort.Strings(vals)
		for j, v := range vals {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
