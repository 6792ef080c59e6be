package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"genflow/internal/infra"
	"genflow/internal/pkg/pgconv"
	"genflow/internal/usecase/readmodel"
)

// PendingEventRepository buffers inbound events received while this
// instance is not the leader. Rows are retained after processing and
// purged by age.
type PendingEventRepository struct {
	db DBTX
}

func NewPendingEventRepository(db DBTX) *PendingEventRepository {
	return &PendingEventRepository{db: db}
}

// Enqueue works regardless of leadership; it must never act on the event.
func (r *PendingEventRepository) Enqueue(ctx context.Context, payload json.RawMessage) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO pending_events (id, payload) VALUES ($1, $2)`,
		id, payload,
	)
	if err != nil {
		return uuid.Nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to enqueue pending event", err)
	}
	return id, nil
}

// Drain claims up to batchSize unprocessed events in enqueue order.
// SKIP LOCKED keeps a dying ex-leader from blocking the new one.
func (r *PendingEventRepository) Drain(ctx context.Context, holderID uuid.UUID, batchSize int32) ([]*readmodel.PendingEventRM, error) {
	rows, err := r.db.Query(ctx,
		`WITH picked AS (
		     SELECT id FROM pending_events
		     WHERE processed_at IS NULL
		     ORDER BY enqueued_at ASC
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 UPDATE pending_events e
		 SET processing_holder_id = $1, attempts = e.attempts + 1
		 FROM picked
		 WHERE e.id = picked.id
		 RETURNING e.id, e.payload, e.enqueued_at, e.processed_at,
		           e.processing_holder_id, e.attempts, e.outcome, e.last_error`,
		holderID, batchSize,
	)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to drain pending events", err)
	}
	defer rows.Close()

	var events []*readmodel.PendingEventRM
	for rows.Next() {
		var rm readmodel.PendingEventRM
		if err := rows.Scan(
			&rm.ID, &rm.Payload, &rm.EnqueuedAt, &rm.ProcessedAt,
			&rm.ProcessingHolderID, &rm.Attempts, &rm.Outcome, &rm.LastError,
		); err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan pending event", err)
		}
		events = append(events, &rm)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to read pending events", err)
	}

	// RETURNING does not guarantee order
	sort.Slice(events, func(i, j int) bool {
		return events[i].EnqueuedAt.Before(events[j].EnqueuedAt)
	})
	return events, nil
}

func (r *PendingEventRepository) MarkProcessed(ctx context.Context, eventID uuid.UUID, outcome string, lastError *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE pending_events
		 SET processed_at = now(), outcome = $2, last_error = $3
		 WHERE id = $1 AND processed_at IS NULL`,
		eventID, outcome, pgconv.StringPtrToPgtype(lastError),
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to mark event processed", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.NewRepoErr(infra.KindNotFound, "pending event not found or already processed")
	}
	return nil
}

func (r *PendingEventRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM pending_events WHERE processed_at IS NOT NULL AND processed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to purge pending events", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PendingEventRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM pending_events WHERE processed_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to count pending events", err)
	}
	return n, nil
}
