package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"planguard/internal/types"
)

// MirrorRepo persists the last good snapshot per tenant in the
// plan_snapshots table. It implements limits.Mirror.
//
// The mirror is a debugging aid only. It survives restarts so an operator
// can see the last limits the authority actually served, but it is never
// consulted on the serving path and never treated as authoritative over a
// fresh fetch.
type MirrorRepo struct {
	db DBTX
}

// NewMirrorRepo creates a MirrorRepo backed by the given database connection.
func NewMirrorRepo(db DBTX) *MirrorRepo {
	return &MirrorRepo{db: db}
}

// Save stores or replaces the tenant's mirrored snapshot. Emergency
// snapshots are skipped: they are locally fabricated and mirroring them
// would overwrite the last real authority data.
func (r *MirrorRepo) Save(ctx context.Context, tenantID string, snap types.Snapshot) error {
	if snap.IsEmergency {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode snapshot for mirror", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO plan_snapshots (tenant_id, snapshot, fetched_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id)
		 DO UPDATE SET snapshot = EXCLUDED.snapshot, fetched_at = EXCLUDED.fetched_at`,
		tenantID, payload, snap.FetchedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write snapshot mirror", err)
	}
	return nil
}

// Load returns the tenant's mirrored snapshot.
func (r *MirrorRepo) Load(ctx context.Context, tenantID string) (types.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRow(ctx,
		`SELECT snapshot FROM plan_snapshots WHERE tenant_id = $1`,
		tenantID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Snapshot{}, types.NewAppError(types.ErrCodeNotFoundSnapshot, "no mirrored snapshot for tenant", err)
	}
	if err != nil {
		return types.Snapshot{}, types.NewAppError(types.ErrCodeInternalDB, "failed to read snapshot mirror", err)
	}
	var snap types.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return types.Snapshot{}, types.NewAppError(types.ErrCodeInternalUnexpected, "mirrored snapshot is corrupt", err)
	}
	return snap, nil
}
