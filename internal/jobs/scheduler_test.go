package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planguard/internal/config"
	"planguard/internal/types"
)

type fakeRefresher struct {
	refreshed []string
	snap      types.Snapshot
}

func (f *fakeRefresher) Refresh(_ context.Context, tenantID string) types.Snapshot {
	f.refreshed = append(f.refreshed, tenantID)
	return f.snap
}

type fakePurger struct {
	cutoff  time.Time
	removed int64
	err     error
	called  bool
}

func (f *fakePurger) PurgeOldEmailCounters(_ context.Context, cutoff time.Time) (int64, error) {
	f.called = true
	f.cutoff = cutoff
	return f.removed, f.err
}

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{
		SyncSchedule:         "5 0 * * *",
		CounterPurgeSchedule: "30 0 * * *",
		CounterRetention:     168 * time.Hour,
	}
}

func TestSchedulerStart_ValidSchedules(t *testing.T) {
	s := NewScheduler(testJobsConfig(), "acme-prod", &fakeRefresher{}, &fakePurger{}, nil)

	require.NoError(t, s.Start())
	s.Stop()
}

func TestSchedulerStart_InvalidSyncSchedule(t *testing.T) {
	cfg := testJobsConfig()
	cfg.SyncSchedule = "every day at midnight"

	s := NewScheduler(cfg, "acme-prod", &fakeRefresher{}, &fakePurger{}, nil)

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync schedule")
}

func TestSchedulerStart_InvalidPurgeSchedule(t *testing.T) {
	cfg := testJobsConfig()
	cfg.CounterPurgeSchedule = "61 25 * * *"

	s := NewScheduler(cfg, "acme-prod", &fakeRefresher{}, &fakePurger{}, nil)

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purge schedule")
}

func TestSchedulerStart_EmptySchedulesDisableJobs(t *testing.T) {
	s := NewScheduler(config.JobsConfig{}, "acme-prod", &fakeRefresher{}, &fakePurger{}, nil)

	require.NoError(t, s.Start())
	s.Stop()
}

func TestSchedulerStart_PurgeSkippedWithoutDatabase(t *testing.T) {
	// A bad purge schedule is irrelevant when there is no purger to run.
	cfg := testJobsConfig()
	cfg.CounterPurgeSchedule = "not-a-schedule"

	s := NewScheduler(cfg, "acme-prod", &fakeRefresher{}, nil, nil)

	require.NoError(t, s.Start())
	s.Stop()
}

func TestRunSync_RefreshesConfiguredTenant(t *testing.T) {
	refresher := &fakeRefresher{snap: types.Snapshot{PlanName: "Professional Plan"}}
	s := NewScheduler(testJobsConfig(), "acme-prod", refresher, nil, nil)

	s.runSync()

	assert.Equal(t, []string{"acme-prod"}, refresher.refreshed)
}

func TestRunPurge_CutoffRespectsRetention(t *testing.T) {
	purger := &fakePurger{removed: 3}
	s := NewScheduler(testJobsConfig(), "acme-prod", &fakeRefresher{}, purger, nil)
	s.now = func() time.Time {
		return time.Date(2025, 6, 10, 0, 30, 0, 0, time.UTC)
	}

	s.runPurge()

	require.True(t, purger.called)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), purger.cutoff)
}

func TestRunPurge_ErrorDoesNotPanic(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	s := NewScheduler(testJobsConfig(), "acme-prod", &fakeRefresher{}, purger, nil)

	require.NotPanics(t, func() { s.runPurge() })
}
