package automation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a scan result stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Cache stores scan results by hostname.
type Cache interface {
	Get(ctx context.Context, host string) (Result, bool)
	Set(ctx context.Context, host string, r Result)
}

type memEntry struct {
	result  Result
	expires time.Time
}

// MemoryCache is a process-local Cache with per-entry expiry.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memEntry
}

// NewMemoryCache creates a MemoryCache. A zero ttl means DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memEntry),
	}
}

// SetClock replaces the time source.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get returns the entry for host if it has not expired.
func (c *MemoryCache) Get(_ context.Context, host string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[host]
	if !ok {
		return Result{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, host)
		return Result{}, false
	}
	return e.result, true
}

// Set stores r for host.
func (c *MemoryCache) Set(_ context.Context, host string, r Result) {
	c.mu.Lock()
	c.entries[host] = memEntry{result: r, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// SetUntil stores r for host until expires or the cache ttl, whichever
// comes first. Nothing is stored if expires has already passed.
func (c *MemoryCache) SetUntil(_ context.Context, host string, r Result, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !now.Before(expires) {
		return
	}
	if limit := now.Add(c.ttl); limit.Before(expires) {
		expires = limit
	}
	c.entries[host] = memEntry{result: r, expires: expires}
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for host, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, host)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DetectionStore persists serialized scan results with an expiry.
// GetCachedDetection returns nil data for missing or expired entries.
type DetectionStore interface {
	GetCachedDetection(ctx context.Context, host string) ([]byte, error)
	SetCachedDetection(ctx context.Context, host string, data []byte, ttl time.Duration) error
}

// StoreCache is a Cache backed by the persistence layer, shared by every
// process using the same database.
type StoreCache struct {
	store DetectionStore
	ttl   time.Duration
}

// NewStoreCache creates a StoreCache. A zero ttl means DefaultTTL.
func NewStoreCache(store DetectionStore, ttl time.Duration) *StoreCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StoreCache{store: store, ttl: ttl}
}

// Get reads host from the store. Store errors are treated as misses.
func (c *StoreCache) Get(ctx context.Context, host string) (Result, bool) {
	data, err := c.store.GetCachedDetection(ctx, host)
	if err != nil {
		zap.L().Warn("automation: cache read failed", zap.String("host", host), zap.Error(err))
		return Result{}, false
	}
	if data == nil {
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		zap.L().Warn("automation: cache entry corrupt", zap.String("host", host), zap.Error(err))
		return Result{}, false
	}
	return r, true
}

// Set writes r for host. Store errors are logged and dropped.
func (c *StoreCache) Set(ctx context.Context, host string, r Result) {
	data, err := json.Marshal(r)
	if err != nil {
		zap.L().Warn("automation: cache encode failed", zap.String("host", host), zap.Error(err))
		return
	}
	if err := c.store.SetCachedDetection(ctx, host, data, c.ttl); err != nil {
		zap.L().Warn("automation: cache write failed", zap.String("host", host), zap.Error(err))
	}
}

// TieredCache reads through a process-local front cache to a shared back
// cache. Back hits are copied into the front but never outlive the
// result's own freshness window.
type TieredCache struct {
	front *MemoryCache
	back  Cache
	ttl   time.Duration
}

// NewTieredCache creates a TieredCache. ttl is the freshness window of
// the back cache; zero means DefaultTTL.
func NewTieredCache(front *MemoryCache, back Cache, ttl time.Duration) *TieredCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TieredCache{front: front, back: back, ttl: ttl}
}

// Get checks the front cache, then the back cache.
func (c *TieredCache) Get(ctx context.Context, host string) (Result, bool) {
	if r, ok := c.front.Get(ctx, host); ok {
		return r, true
	}
	r, ok := c.back.Get(ctx, host)
	if !ok {
		return r, false
	}
	if r.CheckedAt.IsZero() {
		c.front.Set(ctx, host, r)
	} else {
		c.front.SetUntil(ctx, host, r, r.CheckedAt.Add(c.ttl))
	}
	return r, true
}

// Set writes r to both levels.
func (c *TieredCache) Set(ctx context.Context, host string, r Result) {
	c.front.Set(ctx, host, r)
	c.back.Set(ctx, host, r)
}
