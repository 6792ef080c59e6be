package queries

import (
	"context"

	"github.com/google/uuid"

	"genflow/internal/infra"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
)

const defaultListLimit = 50

type JobReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*readmodel.JobRM, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]*readmodel.JobListRM, error)
}

type JobQueries interface {
	GetByID(ctx context.Context, jobID, userID uuid.UUID) (*readmodel.JobRM, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]*readmodel.JobListRM, error)
}

type jobQueriesImpl struct {
	reader JobReader
}

func NewJobQueries(reader JobReader) JobQueries {
	return &jobQueriesImpl{reader: reader}
}

// GetByID returns a job only to its owner; anyone else sees not-found.
func (q *jobQueriesImpl) GetByID(ctx context.Context, jobID, userID uuid.UUID) (*readmodel.JobRM, error) {
	rm, err := q.reader.FindByID(ctx, jobID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, errs.ErrJobNotFound)
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	if rm.UserID != userID {
		return nil, errs.ErrJobNotFound
	}
	return rm, nil
}

func (q *jobQueriesImpl) ListByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]*readmodel.JobListRM, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	jobs, err := q.reader.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	return jobs, nil
}
