package limits

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"planguard/internal/types"
)

// CacheOption is a functional option for configuring a SnapshotCache.
type CacheOption func(*SnapshotCache)

// WithClock overrides the cache's time source. Intended for tests that need
// to simulate TTL expiry without sleeping.
func WithClock(now func() time.Time) CacheOption {
	return func(c *SnapshotCache) {
		c.now = now
	}
}

// Entry is a cached snapshot plus its lifecycle timestamps, exposed for the
// debugging surface.
type Entry struct {
	Snapshot  types.Snapshot `json:"snapshot"`
	StoredAt  time.Time      `json:"stored_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// SnapshotCache is the process-wide per-tenant snapshot store. Entries
// expire independently: normal snapshots after the configured TTL, emergency
// snapshots after the much shorter emergency TTL so a recovered authority is
// re-probed promptly.
//
// The cache is safe for concurrent use. Writes are atomic single-entry
// replacements of immutable values, so last-write-wins is correct without
// external locking.
type SnapshotCache struct {
	store        *lru.Cache[string, Entry]
	ttl          time.Duration
	emergencyTTL time.Duration
	now          func() time.Time
}

// NewSnapshotCache creates a cache bounded to maxTenants entries.
func NewSnapshotCache(maxTenants int, ttl, emergencyTTL time.Duration, opts ...CacheOption) (*SnapshotCache, error) {
	store, err := lru.New[string, Entry](maxTenants)
	if err != nil {
		return nil, err
	}
	c := &SnapshotCache{
		store:        store,
		ttl:          ttl,
		emergencyTTL: emergencyTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached snapshot for the tenant if present and not yet
// expired. A miss covers both "absent" and "expired"; expired entries are
// evicted on the way out.
func (c *SnapshotCache) Get(tenantID string) (types.Snapshot, bool) {
	entry, ok := c.store.Get(tenantID)
	if !ok {
		return types.Snapshot{}, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		c.store.Remove(tenantID)
		return types.Snapshot{}, false
	}
	return entry.Snapshot, true
}

// GetEntry returns the raw cache entry regardless of freshness, for the
// ops/debug view. The second return reports presence, not freshness.
func (c *SnapshotCache) GetEntry(tenantID string) (Entry, bool) {
	return c.store.Get(tenantID)
}

// Put stores or replaces the tenant's entry, stamping the current time.
// Emergency snapshots get the short emergency TTL.
func (c *SnapshotCache) Put(tenantID string, snap types.Snapshot) {
	ttl := c.ttl
	if snap.IsEmergency {
		ttl = c.emergencyTTL
	}
	storedAt := c.now()
	c.store.Add(tenantID, Entry{
		Snapshot:  snap,
		StoredAt:  storedAt,
		ExpiresAt: storedAt.Add(ttl),
	})
}

// Invalidate forces the next Get for the tenant to miss, regardless of age.
func (c *SnapshotCache) Invalidate(tenantID string) {
	c.store.Remove(tenantID)
}

// Len returns the number of cached entries, fresh or stale.
func (c *SnapshotCache) Len() int {
	return c.store.Len()
}
