package manager

import (
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

func newCompletionCache(ttl time.Duration, capacity int) *ttlcache.Cache[string, string] {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithCapacity[string, string](uint64(capacity)),
	)
	go c.Start()
	return c
}

// cacheKey identifies a greedy generation. Sampling settings other than
// temperature do not affect greedy output.
func cacheKey(prompt string, maxLength int) string {
	return strconv.Itoa(maxLength) + "\x00" + prompt
}

func (m *Manager) cacheGet(key string) (string, bool) {
	if m.cache == nil {
		return "", false
	}
	if item := m.cache.Get(key); item != nil {
		cacheLookups.WithLabelValues("hit").Inc()
		return item.Value(), true
	}
	cacheLookups.WithLabelValues("miss").Inc()
	return "", false
}

func (m *Manager) cacheSet(key, text string) {
	if m.cache == nil {
		return
	}
	m.cache.Set(key, text, ttlcache.DefaultTTL)
}

func (m *Manager) cacheLen() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len()
}
