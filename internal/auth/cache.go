package auth

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache is a TTL-based in-memory cache with stale-while-revalidate.
// Uses sync.Map for lock-free reads on the hot path.
type AuthCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	principal  *Principal
	expiresAt  time.Time
	refreshing atomic.Bool
}

// AuthCacheGetResult holds the result of a cache lookup.
type AuthCacheGetResult struct {
	Principal    *Principal
	Hit          bool
	NeedsRefresh bool
}

// NewAuthCache creates a cache with the given TTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl, now: time.Now}
}

// Get performs a non-blocking cache lookup. Exactly one caller of an
// expired entry is told to refresh it.
func (c *AuthCache) Get(apiKey string) AuthCacheGetResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return AuthCacheGetResult{}
	}

	entry := val.(*cacheEntry)
	if c.now().Before(entry.expiresAt) {
		return AuthCacheGetResult{Principal: entry.principal, Hit: true}
	}

	return AuthCacheGetResult{
		Principal:    entry.principal,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a principal with a fresh TTL.
func (c *AuthCache) Set(apiKey string, principal *Principal) {
	c.store.Store(apiKey, &cacheEntry{
		principal: principal,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Delete removes an entry from the cache.
func (c *AuthCache) Delete(apiKey string) {
	c.store.Delete(apiKey)
}

// Revalidate re-runs lookup for a stale entry. A principal that no longer
// authenticates (ErrUnauthenticated) is evicted at once, so a revoked or
// disabled key stops working on its next use. Any other error keeps the
// stale principal and lets the next expired Get retry the refresh.
func (c *AuthCache) Revalidate(apiKey string, lookup func() (*Principal, error)) error {
	principal, err := lookup()
	switch {
	case err == nil:
		c.Set(apiKey, principal)
	case errors.Is(err, ErrUnauthenticated):
		c.Delete(apiKey)
	default:
		if val, ok := c.store.Load(apiKey); ok {
			val.(*cacheEntry).refreshing.Store(false)
		}
	}
	return err
}
