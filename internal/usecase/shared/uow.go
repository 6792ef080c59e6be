package shared

import (
	"context"

	"genflow/internal/infra/repository"
)

// UnitOfWork runs fn inside a database transaction. The ledger and job
// repositories take the transaction handle explicitly so hold/commit/
// release and the matching job transition land atomically.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx repository.DBTX) error) error
}
