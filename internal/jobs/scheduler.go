// Package jobs runs the scheduled maintenance work: the nightly limits
// re-sync for this instance's tenant and the daily purge of stale email
// counter rows.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"planguard/internal/config"
	"planguard/internal/types"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 30 * time.Second

// Refresher is the limits-manager surface the sync job needs.
type Refresher interface {
	Refresh(ctx context.Context, tenantID string) types.Snapshot
}

// CounterPurger removes email counter rows older than the cutoff.
// Implemented by db.UsageDB.
type CounterPurger interface {
	PurgeOldEmailCounters(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler wires the maintenance jobs onto a cron runner.
type Scheduler struct {
	cfg    config.JobsConfig
	tenant string
	limits Refresher
	purger CounterPurger // may be nil when no database is configured
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler creates the maintenance scheduler for the given tenant.
func NewScheduler(cfg config.JobsConfig, tenant string, limits Refresher, purger CounterPurger, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		tenant: tenant,
		limits: limits,
		purger: purger,
		cron:   cron.New(),
		logger: logger.With("component", "jobs"),
		now:    time.Now,
	}
}

// Start registers the configured jobs and starts the cron runner. An empty
// schedule disables the corresponding job. Invalid cron expressions fail
// startup so misconfiguration is caught immediately.
func (s *Scheduler) Start() error {
	if s.cfg.SyncSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, s.runSync); err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", s.cfg.SyncSchedule, err)
		}
	}
	if s.cfg.CounterPurgeSchedule != "" && s.purger != nil {
		if _, err := s.cron.AddFunc(s.cfg.CounterPurgeSchedule, s.runPurge); err != nil {
			return fmt.Errorf("invalid counter purge schedule %q: %w", s.cfg.CounterPurgeSchedule, err)
		}
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started",
		"sync_schedule", s.cfg.SyncSchedule,
		"counter_purge_schedule", s.cfg.CounterPurgeSchedule,
	)
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runSync refreshes the tenant's limits, pre-warming the cache so the first
// request after midnight does not pay the fetch latency.
func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	snap := s.limits.Refresh(ctx, s.tenant)
	s.logger.Info("nightly limits sync completed",
		"tenant", s.tenant,
		"plan", snap.PlanName,
		"emergency", snap.IsEmergency,
	)
}

// runPurge removes email counter rows past the retention window. Today's
// counter is always retained because the cutoff lies in the past.
func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := s.now().UTC().Add(-s.cfg.CounterRetention).Truncate(24 * time.Hour)
	removed, err := s.purger.PurgeOldEmailCounters(ctx, cutoff)
	if err != nil {
		s.logger.Error("email counter purge failed", "error", err)
		return
	}
	s.logger.Info("email counter purge completed", "removed", removed, "cutoff", cutoff)
}
