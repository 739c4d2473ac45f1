package fetch

import (
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenSuffixLen = 16

// Request is one logical GET against the sales API.
type Request struct {
	Endpoint string
	Query    url.Values
}

func (r Request) endpoint() string {
	return strings.Trim(r.Endpoint, "/")
}

func (r Request) pathWithQuery() string {
	p := r.endpoint()
	if len(r.Query) > 0 {
		p += "?" + r.Query.Encode()
	}
	return p
}

// RequestKey identifies a logical request: token suffix, endpoint and the
// canonical (sorted) query string.
func RequestKey(token string, r Request) string {
	suffix := token
	if len(suffix) > tokenSuffixLen {
		suffix = suffix[len(suffix)-tokenSuffixLen:]
	}
	return suffix + "|" + r.pathWithQuery()
}

type cacheEntry struct {
	data      json.RawMessage
	expiresAt time.Time
}

// responseCache holds parsed responses until they expire. Expired entries
// are dropped on the next lookup; there is no background sweep.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(key string, now time.Time) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.data, true
}

func (c *responseCache) set(key string, data json.RawMessage, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{data: data, expiresAt: expiresAt}
}

// invalidate drops entries whose endpoint starts with prefix; an empty
// prefix clears everything.
func (c *responseCache) invalidate(prefix string) int {
	prefix = strings.Trim(prefix, "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		_, path, _ := strings.Cut(key, "|")
		if strings.HasPrefix(path, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
