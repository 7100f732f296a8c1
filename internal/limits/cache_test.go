package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planguard/internal/types"
)

// fakeClock is a manually advanced time source for TTL tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func testSnapshot(plan string) types.Snapshot {
	return types.Snapshot{
		SubscriptionCode:        "SUB-00123",
		PlanName:                plan,
		MaxUsers:                10,
		MaxExternalEmailsPerDay: 100,
		BlockedModulePatterns:   []string{"mrp*", "stock*"},
		FetchedAt:               time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestCache(t *testing.T, clock *fakeClock) *SnapshotCache {
	t.Helper()
	cache, err := NewSnapshotCache(16, time.Hour, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)
	return cache
}

func TestSnapshotCache_GetAfterPut(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	snap := testSnapshot("Professional Plan")
	cache.Put("tenant-a", snap)

	got, ok := cache.Get("tenant-a")
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestSnapshotCache_MissWhenAbsent(t *testing.T) {
	cache := newTestCache(t, newFakeClock())

	_, ok := cache.Get("tenant-a")
	assert.False(t, ok)
}

func TestSnapshotCache_MissAfterTTL(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	cache.Put("tenant-a", testSnapshot("Professional Plan"))

	clock.Advance(time.Hour - time.Second)
	_, ok := cache.Get("tenant-a")
	assert.True(t, ok, "entry should still be fresh just before the TTL")

	clock.Advance(time.Second)
	_, ok = cache.Get("tenant-a")
	assert.False(t, ok, "entry should expire exactly at the TTL")
}

func TestSnapshotCache_EmergencyUsesShortTTL(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	cache.Put("tenant-a", EmergencySnapshot())

	clock.Advance(59 * time.Second)
	_, ok := cache.Get("tenant-a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = cache.Get("tenant-a")
	assert.False(t, ok, "emergency entries must expire at the short TTL")
}

func TestSnapshotCache_Invalidate(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	cache.Put("tenant-a", testSnapshot("Professional Plan"))
	cache.Invalidate("tenant-a")

	_, ok := cache.Get("tenant-a")
	assert.False(t, ok)
}

func TestSnapshotCache_TenantsExpireIndependently(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	cache.Put("tenant-a", testSnapshot("Plan A"))
	clock.Advance(30 * time.Minute)
	cache.Put("tenant-b", testSnapshot("Plan B"))
	clock.Advance(45 * time.Minute)

	_, ok := cache.Get("tenant-a")
	assert.False(t, ok, "tenant-a entry is 75 minutes old")

	got, ok := cache.Get("tenant-b")
	require.True(t, ok, "tenant-b entry is 45 minutes old")
	assert.Equal(t, "Plan B", got.PlanName)
}

func TestSnapshotCache_PutReplaces(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	cache.Put("tenant-a", testSnapshot("Old Plan"))
	clock.Advance(50 * time.Minute)
	cache.Put("tenant-a", testSnapshot("New Plan"))
	clock.Advance(30 * time.Minute)

	got, ok := cache.Get("tenant-a")
	require.True(t, ok, "replacement restarts the TTL window")
	assert.Equal(t, "New Plan", got.PlanName)
}

func TestSnapshotCache_GetEntryIgnoresFreshness(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	cache.Put("tenant-a", testSnapshot("Professional Plan"))
	clock.Advance(2 * time.Hour)

	entry, ok := cache.GetEntry("tenant-a")
	require.True(t, ok, "the debug view shows stale entries")
	assert.Equal(t, "Professional Plan", entry.Snapshot.PlanName)
	assert.True(t, entry.ExpiresAt.After(entry.StoredAt))
}
