package commands

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"genflow/internal/infra"
	"genflow/internal/infra/repository"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
	"genflow/internal/usecase/shared"
)

var ErrInvalidCreditAmount = errs.New("credit amount must be positive")

type AccountCommands interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int64, ref string) (*readmodel.AccountRM, error)
}

type accountUseCaseImpl struct {
	ledgerRepo LedgerRepository
	uow        shared.UnitOfWork
}

func NewAccountUseCase(ledgerRepo LedgerRepository, uow shared.UnitOfWork) AccountCommands {
	return &accountUseCaseImpl{ledgerRepo: ledgerRepo, uow: uow}
}

// Credit tops up a balance. The ref makes it safe to retry: crediting
// the same ref twice applies the amount once.
func (u *accountUseCaseImpl) Credit(ctx context.Context, userID uuid.UUID, amount int64, ref string) (*readmodel.AccountRM, error) {
	if amount <= 0 {
		return nil, ErrInvalidCreditAmount
	}
	if ref == "" {
		return nil, errs.New("credit ref is required")
	}

	var account *readmodel.AccountRM
	err := u.uow.Within(ctx, func(ctx context.Context, tx repository.DBTX) error {
		rm, err := u.ledgerRepo.Credit(ctx, tx, userID, amount, ref)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.Mark(err, errs.ErrAccountNotFound)
			}
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		account = rm
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("account credited", "user_id", userID, "amount", amount, "ref", ref)
	return account, nil
}
