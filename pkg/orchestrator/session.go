package orchestrator

import (
	"sync"
	"time"

	"github.com/lucia-home/lucia/pkg/models"
)

// Session cache defaults.
const (
	DefaultSessionCacheLength = 5 * time.Minute
	DefaultMaxHistoryItems    = 20
)

// SessionCacheOptions tunes the in-process conversation cache.
type SessionCacheOptions struct {
	// SessionCacheLengthMinutes is how long an idle conversation context is
	// retained before agents lose their threads.
	SessionCacheLengthMinutes int `yaml:"session_cache_length_minutes"`

	// MaxHistoryItems caps the cached history in turns.
	MaxHistoryItems int `yaml:"max_history_items"`
}

func (o SessionCacheOptions) ttl() time.Duration {
	if o.SessionCacheLengthMinutes <= 0 {
		return DefaultSessionCacheLength
	}
	return time.Duration(o.SessionCacheLengthMinutes) * time.Minute
}

func (o SessionCacheOptions) historyLimit() int {
	if o.MaxHistoryItems <= 0 {
		return DefaultMaxHistoryItems
	}
	return o.MaxHistoryItems
}

// sessionCache keeps OrchestrationContexts alive between requests of one
// conversation so local agent threads survive within a process. Evicted
// contexts are rebuilt from the durable task; only the opaque threads are
// lost.
type sessionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*sessionEntry

	now func() time.Time
}

type sessionEntry struct {
	ctx     *models.OrchestrationContext
	expires time.Time
}

func newSessionCache(ttl time.Duration) *sessionCache {
	return &sessionCache{
		ttl:     ttl,
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// get returns a copy of the cached context for key, or nil when absent or
// expired. Copying keeps concurrent requests on the same session from
// mutating one context; the request that finishes last wins the cache slot
// on put.
func (c *sessionCache) get(key string) *models.OrchestrationContext {
	if key == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil
	}
	return entry.ctx.Clone()
}

// put stores the context under key and refreshes its expiry. Expired peers
// are swept opportunistically.
func (c *sessionCache) put(key string, oc *models.OrchestrationContext) {
	if key == "" || oc == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = &sessionEntry{ctx: oc, expires: now.Add(c.ttl)}
}
