package queries

import (
	"context"

	"github.com/google/uuid"

	"genflow/internal/infra"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
)

type AccountReader interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*readmodel.AccountRM, error)
}

type AccountQueries interface {
	Get(ctx context.Context, userID uuid.UUID) (*readmodel.AccountRM, error)
}

type accountQueriesImpl struct {
	reader AccountReader
}

func NewAccountQueries(reader AccountReader) AccountQueries {
	return &accountQueriesImpl{reader: reader}
}

func (q *accountQueriesImpl) Get(ctx context.Context, userID uuid.UUID) (*readmodel.AccountRM, error) {
	rm, err := q.reader.GetAccount(ctx, userID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, errs.ErrAccountNotFound)
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	return rm, nil
}
