package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genflow/internal/domain/job"
	"genflow/internal/infra"
	"genflow/internal/pkg/pgconv"
	"genflow/internal/usecase/readmodel"
)

const jobColumns = `id, idempotency_key, user_id, hold_id, amount, request_hash,
	request_payload, destination, external_ref, state, result_payload,
	error_text, delivered_at, created_at, updated_at`

// JobRepository persists jobs. All state changes are
// compare-and-transition updates conditioned on the prior state, never
// blind overwrites.
type JobRepository struct {
	db DBTX
}

func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, tx DBTX, j *job.Job) (*readmodel.JobRM, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO jobs (id, idempotency_key, user_id, hold_id, amount,
		                   request_hash, request_payload, destination, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+jobColumns,
		j.ID(), j.IdempotencyKey(), j.UserID(), j.HoldID(), j.Amount(),
		j.RequestHash(), j.Payload(), j.Destination(), job.StateCreated,
	)
	rm, err := scanJobRM(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, infra.WrapRepoErr(infra.KindDuplicateKey, "job already exists for idempotency key", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to create job", err)
	}
	return rm, nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*readmodel.JobRM, error) {
	return r.findBy(ctx, r.db, `id = $1`, id)
}

func (r *JobRepository) FindByIDTx(ctx context.Context, tx DBTX, id uuid.UUID) (*readmodel.JobRM, error) {
	return r.findBy(ctx, tx, `id = $1`, id)
}

func (r *JobRepository) FindByIdempotencyKey(ctx context.Context, key uuid.UUID) (*readmodel.JobRM, error) {
	return r.findBy(ctx, r.db, `idempotency_key = $1`, key)
}

func (r *JobRepository) FindByExternalRef(ctx context.Context, externalRef string) (*readmodel.JobRM, error) {
	return r.findBy(ctx, r.db, `external_ref = $1`, externalRef)
}

func (r *JobRepository) findBy(ctx context.Context, db DBTX, where string, arg any) (*readmodel.JobRM, error) {
	row := db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where, arg)
	rm, err := scanJobRM(row)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.NewRepoErr(infra.KindNotFound, "job not found")
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to find job", err)
	}
	return rm, nil
}

// MarkDispatched moves created → dispatched, recording the external
// reference. Returns false when the job already left created.
func (r *JobRepository) MarkDispatched(ctx context.Context, tx DBTX, id uuid.UUID, externalRef string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE jobs
		 SET state = $2, external_ref = $3, updated_at = now()
		 WHERE id = $1 AND state = $4`,
		id, job.StateDispatched, externalRef, job.StateCreated,
	)
	if err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to mark job dispatched", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionTerminal moves a job into a terminal state only from one of
// the allowed prior states. Returns false when another transition won.
func (r *JobRepository) TransitionTerminal(
	ctx context.Context,
	tx DBTX,
	id uuid.UUID,
	from []job.State,
	to job.State,
	resultPayload json.RawMessage,
	errorText *string,
) (bool, error) {
	if !to.IsTerminal() {
		return false, infra.NewRepoErr(infra.KindConflict, "target state is not terminal")
	}
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = s.String()
	}
	tag, err := tx.Exec(ctx,
		`UPDATE jobs
		 SET state = $2, result_payload = $3, error_text = $4, updated_at = now()
		 WHERE id = $1 AND state = ANY($5)`,
		id, to, resultPayload, pgconv.StringPtrToPgtype(errorText), states,
	)
	if err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to transition job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStale returns jobs stuck in the given state since before the
// cutoff, oldest first. Used by the cleanup sweep.
func (r *JobRepository) ListStale(ctx context.Context, state job.State, before time.Time, limit int32) ([]*readmodel.JobRM, error) {
	return r.list(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE state = $1 AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		state, before, limit,
	)
}

func (r *JobRepository) ListByState(ctx context.Context, state job.State, limit int32) ([]*readmodel.JobRM, error) {
	return r.list(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE state = $1
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		state, limit,
	)
}

// ListUndelivered returns succeeded jobs whose artifact has not reached
// the destination channel yet.
func (r *JobRepository) ListUndelivered(ctx context.Context, limit int32) ([]*readmodel.JobRM, error) {
	return r.list(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE state = $1 AND delivered_at IS NULL
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		job.StateSucceeded, limit,
	)
}

func (r *JobRepository) MarkDelivered(ctx context.Context, id uuid.UUID, outcome string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET delivered_at = now(), delivery_outcome = $2, updated_at = now()
		 WHERE id = $1 AND delivered_at IS NULL`,
		id, outcome,
	)
	if err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to mark job delivered", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]*readmodel.JobListRM, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, state, amount, error_text, created_at, updated_at
		 FROM jobs
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to list user jobs", err)
	}
	defer rows.Close()

	var jobs []*readmodel.JobListRM
	for rows.Next() {
		var rm readmodel.JobListRM
		if err := rows.Scan(&rm.ID, &rm.State, &rm.Amount, &rm.ErrorText, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan job row", err)
		}
		jobs = append(jobs, &rm)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to read job rows", err)
	}
	return jobs, nil
}

func (r *JobRepository) list(ctx context.Context, query string, args ...any) ([]*readmodel.JobRM, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to list jobs", err)
	}
	defer rows.Close()

	var jobs []*readmodel.JobRM
	for rows.Next() {
		rm, err := scanJobRM(rows)
		if err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan job row", err)
		}
		jobs = append(jobs, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to read job rows", err)
	}
	return jobs, nil
}

func scanJobRM(row pgx.Row) (*readmodel.JobRM, error) {
	var rm readmodel.JobRM
	err := row.Scan(
		&rm.ID, &rm.IdempotencyKey, &rm.UserID, &rm.HoldID, &rm.Amount,
		&rm.RequestHash, &rm.RequestPayload, &rm.Destination, &rm.ExternalRef,
		&rm.State, &rm.ResultPayload, &rm.ErrorText, &rm.DeliveredAt,
		&rm.CreatedAt, &rm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rm, nil
}
