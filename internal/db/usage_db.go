package db

import (
	"context"
	"time"

	"planguard/internal/types"
)

// UsageDB provides the usage counts consumed by enforcement checks. The
// enforcement core never computes counts itself; it only consumes them, so
// these queries live here rather than in the evaluator.
//
// Counts are read from the tenant's own database: the users table for
// account counts and the email_counters table for the daily external-email
// tally.
type UsageDB struct {
	db DBTX
}

// NewUsageDB creates a UsageDB backed by the given database connection.
func NewUsageDB(db DBTX) *UsageDB {
	return &UsageDB{db: db}
}

// CountActiveUsers returns the number of active internal user accounts for
// the tenant. Portal/share accounts do not consume plan capacity and are
// excluded.
func (u *UsageDB) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := u.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM users
		 WHERE tenant_id = $1
		   AND active
		   AND NOT share`,
		tenantID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count active users", err)
	}
	return count, nil
}

// ExternalEmailsToday returns the tenant's external-email count for the
// given day (a date, truncated to midnight UTC by the caller). Missing rows
// read as zero.
func (u *UsageDB) ExternalEmailsToday(ctx context.Context, tenantID string, day time.Time) (int, error) {
	var count int
	err := u.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(sent_count), 0)
		 FROM email_counters
		 WHERE tenant_id = $1
		   AND day = $2`,
		tenantID, day,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read email counter", err)
	}
	return count, nil
}

// RecordExternalEmails adds n to the tenant's counter for the given day.
// The upsert keeps concurrent senders correct without a read-modify-write.
func (u *UsageDB) RecordExternalEmails(ctx context.Context, tenantID string, day time.Time, n int) error {
	_, err := u.db.Exec(ctx,
		`INSERT INTO email_counters (tenant_id, day, sent_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, day)
		 DO UPDATE SET sent_count = email_counters.sent_count + EXCLUDED.sent_count`,
		tenantID, day, n,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record external emails", err)
	}
	return nil
}

// PurgeOldEmailCounters deletes counter rows older than the cutoff. Run
// daily; today's row is never touched because the cutoff is always in the
// past. Returns the number of rows removed.
func (u *UsageDB) PurgeOldEmailCounters(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := u.db.Exec(ctx,
		`DELETE FROM email_counters WHERE day < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge email counters", err)
	}
	return tag.RowsAffected(), nil
}
