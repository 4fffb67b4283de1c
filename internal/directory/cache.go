package directory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Cached wraps a Directory with a bounded-TTL email -> chat id cache.
//
// Identity mappings change rarely, so positive lookups are cached for TTL.
// Misses and transport errors are never cached. Reads are concurrent; each
// key has a single writer at a time so a burst of events for the same user
// issues one upstream lookup.
type Cached struct {
	inner Directory
	ttl   time.Duration
	max   int
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry

	// inflight serializes upstream lookups per email.
	fmu      sync.Mutex
	inflight map[string]*sync.Mutex
}

type cacheEntry struct {
	chatID string
	until  time.Time
}

func NewCached(inner Directory, ttl time.Duration, maxEntries int) *Cached {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 2000
	}
	return &Cached{
		inner:    inner,
		ttl:      ttl,
		max:      maxEntries,
		now:      time.Now,
		entries:  map[string]cacheEntry{},
		inflight: map[string]*sync.Mutex{},
	}
}

func (c *Cached) LookupByEmail(ctx context.Context, email string) (string, error) {
	if id, ok := c.get(email); ok {
		return id, nil
	}

	// Single writer per key: the first caller does the upstream lookup,
	// concurrent callers for the same email wait and re-check.
	km := c.keyLock(email)
	km.Lock()
	defer km.Unlock()

	if id, ok := c.get(email); ok {
		return id, nil
	}

	id, err := c.inner.LookupByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	c.put(email, id)
	return id, nil
}

// Send passes through untouched; only identity lookups are cached.
func (c *Cached) Send(ctx context.Context, chatID string, text string) error {
	return c.inner.Send(ctx, chatID, text)
}

// Prune drops expired entries. Called on a schedule by the app.
func (c *Cached) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.until) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cached) get(email string) (string, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[email]
	c.mu.RUnlock()
	if !ok || !now.Before(e.until) {
		return "", false
	}
	return e.chatID, true
}

func (c *Cached) put(email, chatID string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[email] = cacheEntry{chatID: chatID, until: now.Add(c.ttl)}
	if len(c.entries) <= c.max {
		return
	}
	// Over cap: evict entries closest to expiry.
	for len(c.entries) > c.max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, e := range c.entries {
			if !set || e.until.Before(minT) {
				minKey, minT, set = k, e.until, true
			}
		}
		if !set {
			break
		}
		delete(c.entries, minKey)
	}
}

func (c *Cached) keyLock(email string) *sync.Mutex {
	c.fmu.Lock()
	defer c.fmu.Unlock()
	m, ok := c.inflight[email]
	if !ok {
		m = &sync.Mutex{}
		c.inflight[email] = m
		// Keep the lock table bounded alongside the cache.
		if len(c.inflight) > c.max*2 {
			c.inflight = map[string]*sync.Mutex{email: m}
		}
	}
	return m
}

// IsNotFound reports whether err is a directory miss (as opposed to a
// transport failure). Both are skip-and-continue at delivery time, but they
// are logged differently.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
