// Package intro holds the prepared values computed by an initiating peer at
// preview time so every peer applies the same randomized outcome.
package intro

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTTL is used when callers do not pick a lifetime.
	DefaultTTL = 20 * time.Second
	minTTL     = time.Second

	// The LRU bound only keeps abandoned previews from piling up; per-entry
	// expiry decides visibility.
	defaultCapacity = 256
)

// Prepared is one previewed outcome.
type Prepared struct {
	Text    string
	Numeric float64
	Expiry  time.Time
}

type key struct {
	kind      uint8
	initiator string
}

// Cache maps (effect kind, initiator) to a prepared value. Every operation runs
// under a single mutex.
type Cache struct {
	mu      sync.Mutex
	entries *expirable.LRU[key, Prepared]
	now     func() time.Time
}

// NewCache builds an empty cache. A nil clock uses time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		// A zero TTL keeps the LRU from starting its expiry goroutine, which
		// never exits.
		entries: expirable.NewLRU[key, Prepared](defaultCapacity, nil, 0),
		now:     now,
	}
}

// Set overwrites the entry for (kind, initiator). ttl is floored to one second.
func (c *Cache) Set(kind uint8, initiator, text string, numeric float64, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key{kind: kind, initiator: initiator}, Prepared{
		Text:    text,
		Numeric: numeric,
		Expiry:  c.now().Add(ttl),
	})
}

// Consume returns and removes the entry when it has not expired. Expired
// entries are evicted on the way.
func (c *Cache) Consume(kind uint8, initiator string) (Prepared, bool) {
	if c == nil {
		return Prepared{}, false
	}
	k := key{kind: kind, initiator: initiator}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries.Peek(k)
	if !ok {
		return Prepared{}, false
	}
	c.entries.Remove(k)
	if c.now().After(entry.Expiry) {
		return Prepared{}, false
	}
	return entry, true
}

// TryGetLatest returns, without removing it, the live entry of kind with the
// latest expiry across all initiators. Every expired entry of kind is evicted.
func (c *Cache) TryGetLatest(kind uint8) (Prepared, bool) {
	if c == nil {
		return Prepared{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var (
		best  Prepared
		found bool
	)
	// Keys are ordered oldest first so ties resolve to the newest write.
	for _, k := range c.entries.Keys() {
		if k.kind != kind {
			continue
		}
		entry, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		if now.After(entry.Expiry) {
			c.entries.Remove(k)
			continue
		}
		if !found || !entry.Expiry.Before(best.Expiry) {
			best = entry
			found = true
		}
	}
	return best, found
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Reset drops every entry. Called on session boundaries.
func (c *Cache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
}
