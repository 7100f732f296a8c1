package limits

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"planguard/internal/types"
)

// Mirror persists the last good snapshot per tenant as a debugging aid.
// The mirror is never authoritative: the Manager only writes it, and only
// the ops surface reads it back.
type Mirror interface {
	Save(ctx context.Context, tenantID string, snap types.Snapshot) error
	Load(ctx context.Context, tenantID string) (types.Snapshot, error)
}

// mirrorSaveTimeout bounds the best-effort mirror write so a slow database
// cannot delay serving limits.
const mirrorSaveTimeout = 2 * time.Second

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithMirror attaches a durable snapshot mirror. Optional.
func WithMirror(m Mirror) ManagerOption {
	return func(mgr *Manager) {
		mgr.mirror = m
	}
}

// WithMetrics attaches Prometheus instruments. Optional.
func WithMetrics(m *Metrics) ManagerOption {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// Manager is the single integration point for plan limits. Every
// enforcement check goes through GetLimits, which is total: callers never
// see a network failure, only a (possibly emergency) snapshot.
type Manager struct {
	client  Fetcher
	cache   *SnapshotCache
	mirror  Mirror
	metrics *Metrics
	logger  *slog.Logger

	// group coalesces concurrent fetches for the same tenant into one
	// authority call, bounding authority load under a miss stampede.
	group singleflight.Group
}

// NewManager creates a Manager over the given fetcher and cache.
func NewManager(client Fetcher, cache *SnapshotCache, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		client: client,
		cache:  cache,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetLimits returns the tenant's current plan limits. Cache hit: served
// directly. Miss: one coalesced authority fetch; on success the snapshot is
// cached for the normal TTL, on failure the fail-closed emergency snapshot
// is returned and cached for the short emergency TTL so the authority is
// retried promptly once it recovers.
func (m *Manager) GetLimits(ctx context.Context, tenantID string) types.Snapshot {
	if snap, ok := m.cache.Get(tenantID); ok {
		if m.metrics != nil {
			m.metrics.CacheHits.Inc()
		}
		return snap
	}
	if m.metrics != nil {
		m.metrics.CacheMisses.Inc()
	}

	v, _, _ := m.group.Do(tenantID, func() (any, error) {
		// A concurrent flight may have populated the cache while this
		// caller was queued behind it.
		if snap, ok := m.cache.Get(tenantID); ok {
			return snap, nil
		}
		// The fetch outcome is shared by every coalesced caller and cached
		// for the whole tenant, so it must not inherit the winning caller's
		// cancellation: an aborted request would otherwise cache the
		// emergency snapshot while the authority is healthy. The client's
		// own timeout still bounds the call.
		return m.fetchOrFallback(context.WithoutCancel(ctx), tenantID), nil
	})
	return v.(types.Snapshot)
}

// Refresh is the explicit invalidate-then-refetch action behind the
// "Refresh Limits" ops endpoint.
func (m *Manager) Refresh(ctx context.Context, tenantID string) types.Snapshot {
	m.cache.Invalidate(tenantID)
	return m.GetLimits(ctx, tenantID)
}

// CachedEntry exposes the raw cache entry for the ops/debug view.
func (m *Manager) CachedEntry(tenantID string) (Entry, bool) {
	return m.cache.GetEntry(tenantID)
}

// MirroredSnapshot returns the durable mirror row for the tenant, if a
// mirror is configured.
func (m *Manager) MirroredSnapshot(ctx context.Context, tenantID string) (types.Snapshot, error) {
	if m.mirror == nil {
		return types.Snapshot{}, types.NewAppError(types.ErrCodeNotFoundSnapshot, "snapshot mirror is not configured", nil)
	}
	return m.mirror.Load(ctx, tenantID)
}

func (m *Manager) fetchOrFallback(ctx context.Context, tenantID string) types.Snapshot {
	snap, err := m.client.Fetch(ctx, tenantID)
	if err != nil {
		reason := FailureReasonOf(err)
		if m.metrics != nil {
			m.metrics.FetchFailures.WithLabelValues(string(reason)).Inc()
			m.metrics.EmergencyFallbacks.Inc()
		}
		m.logger.Error("authority fetch failed, serving emergency limits",
			"tenant", tenantID,
			"reason", string(reason),
			"error", err,
		)
		em := EmergencySnapshot()
		m.cache.Put(tenantID, em)
		return em
	}

	m.cache.Put(tenantID, snap)
	m.saveMirror(tenantID, snap)

	m.logger.Info("plan limits refreshed",
		"tenant", tenantID,
		"plan", snap.PlanName,
		"max_users", snap.MaxUsers,
		"max_external_emails_per_day", snap.MaxExternalEmailsPerDay,
		"blocked_patterns", len(snap.BlockedModulePatterns),
	)
	return snap
}

// saveMirror writes the snapshot to the durable mirror, best effort. Mirror
// failures are logged and otherwise ignored; the in-memory cache already
// holds the snapshot.
func (m *Manager) saveMirror(tenantID string, snap types.Snapshot) {
	if m.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorSaveTimeout)
	defer cancel()
	if err := m.mirror.Save(ctx, tenantID, snap); err != nil {
		m.logger.Warn("snapshot mirror write failed", "tenant", tenantID, "error", err)
	}
}
