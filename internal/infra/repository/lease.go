package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"genflow/internal/infra"
	"genflow/internal/pkg/pgconv"
)

// LeaseRepository implements the leader lease as a singleton row per
// lease name. Acquire, renew and release are each one conditional
// statement, so any number of replicas can race safely.
type LeaseRepository struct {
	db DBTX
}

func NewLeaseRepository(db DBTX) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// TryAcquire succeeds when no unexpired lease exists or the caller
// already holds it. Expiry is judged on the database clock so replicas
// with skewed clocks cannot disagree.
func (r *LeaseRepository) TryAcquire(ctx context.Context, name string, holderID uuid.UUID, ttl time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO leases (name, holder_id, acquired_at, expires_at)
		 VALUES ($1, $2, now(), now() + make_interval(secs => $3))
		 ON CONFLICT (name) DO UPDATE
		 SET holder_id = EXCLUDED.holder_id,
		     acquired_at = EXCLUDED.acquired_at,
		     expires_at = EXCLUDED.expires_at
		 WHERE leases.expires_at < now() OR leases.holder_id = EXCLUDED.holder_id`,
		name, holderID, ttl.Seconds(),
	)
	if err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to acquire lease", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Renew extends the lease only while the caller still holds an
// unexpired one. A false return means leadership is gone.
func (r *LeaseRepository) Renew(ctx context.Context, name string, holderID uuid.UUID, ttl time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE leases
		 SET expires_at = now() + make_interval(secs => $3)
		 WHERE name = $1 AND holder_id = $2 AND expires_at >= now()`,
		name, holderID, ttl.Seconds(),
	)
	if err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to renew lease", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LeaseRepository) Release(ctx context.Context, name string, holderID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM leases WHERE name = $1 AND holder_id = $2`,
		name, holderID,
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to release lease", err)
	}
	return nil
}

type LeaseRow struct {
	Name       string
	HolderID   uuid.UUID
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

func (r *LeaseRepository) Get(ctx context.Context, name string) (*LeaseRow, error) {
	var row LeaseRow
	err := r.db.QueryRow(ctx,
		`SELECT name, holder_id, acquired_at, expires_at FROM leases WHERE name = $1`,
		name,
	).Scan(&row.Name, &row.HolderID, &row.AcquiredAt, &row.ExpiresAt)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.NewRepoErr(infra.KindNotFound, "lease not found")
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to get lease", err)
	}
	return &row, nil
}
