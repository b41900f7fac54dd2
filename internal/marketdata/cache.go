package marketdata

import (
	"sync"
	"time"

	"financial-reporter/internal/shared/metrics"
)

type cacheEntry struct {
	body    []byte
	expires time.Time
}

// ttlCache keeps raw provider responses until they expire.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newTTLCache(ttl time.Duration, now func() time.Time) *ttlCache {
	if now == nil {
		now = time.Now
	}
	return &ttlCache{ttl: ttl, entries: make(map[string]cacheEntry), now: now}
}

func (c *ttlCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expires) {
		metrics.IncMarketCache(true)
		return entry.body, true
	}
	if ok {
		delete(c.entries, key)
	}
	metrics.IncMarketCache(false)
	return nil, false
}

func (c *ttlCache) set(key string, body []byte) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, expires: c.now().Add(c.ttl)}
}
