package repository

import (
	"context"

	"github.com/google/uuid"

	"genflow/internal/domain/ledger"
	"genflow/internal/infra"
	"genflow/internal/pkg/pgconv"
	"genflow/internal/usecase/readmodel"
)

// LedgerRepository owns balance_accounts, holds and ledger_entries.
// Hold, Commit, Release and Credit are idempotent; the write methods
// issue multiple statements and must run inside a transaction.
type LedgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) GetAccount(ctx context.Context, userID uuid.UUID) (*readmodel.AccountRM, error) {
	return r.getAccount(ctx, r.db, userID)
}

func (r *LedgerRepository) getAccount(ctx context.Context, db DBTX, userID uuid.UUID) (*readmodel.AccountRM, error) {
	var rm readmodel.AccountRM
	err := db.QueryRow(ctx,
		`SELECT user_id, available_amount, updated_at FROM balance_accounts WHERE user_id = $1`,
		userID,
	).Scan(&rm.UserID, &rm.AvailableAmount, &rm.UpdatedAt)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.NewRepoErr(infra.KindNotFound, "account not found")
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to get account", err)
	}
	return &rm, nil
}

func (r *LedgerRepository) GetHold(ctx context.Context, holdID uuid.UUID) (*readmodel.HoldRM, error) {
	return r.getHold(ctx, r.db, holdID)
}

func (r *LedgerRepository) getHold(ctx context.Context, db DBTX, holdID uuid.UUID) (*readmodel.HoldRM, error) {
	var rm readmodel.HoldRM
	err := db.QueryRow(ctx,
		`SELECT id, user_id, amount, status, created_at FROM holds WHERE id = $1`,
		holdID,
	).Scan(&rm.ID, &rm.UserID, &rm.Amount, &rm.Status, &rm.CreatedAt)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return nil, infra.NewRepoErr(infra.KindNotFound, "hold not found")
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to get hold", err)
	}
	return &rm, nil
}

// Hold atomically moves amount out of available balance and records a
// pending hold. Calling again with the same holdID returns the existing
// hold without touching the balance a second time.
func (r *LedgerRepository) Hold(ctx context.Context, tx DBTX, userID uuid.UUID, amount int64, holdID uuid.UUID) (*readmodel.HoldRM, error) {
	if amount <= 0 {
		return nil, infra.NewRepoErr(infra.KindConflict, "hold amount must be positive")
	}

	existing, err := r.getHold(ctx, tx, holdID)
	if err == nil {
		return existing, nil
	}
	if !infra.IsKind(err, infra.KindNotFound) {
		return nil, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE balance_accounts
		 SET available_amount = available_amount - $2, updated_at = now()
		 WHERE user_id = $1 AND available_amount >= $2`,
		userID, amount,
	)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to debit account", err)
	}
	if tag.RowsAffected() == 0 {
		if _, accErr := r.getAccount(ctx, tx, userID); accErr != nil {
			return nil, accErr
		}
		return nil, infra.NewRepoErr(infra.KindConflict, "insufficient funds")
	}

	var rm readmodel.HoldRM
	err = tx.QueryRow(ctx,
		`INSERT INTO holds (id, user_id, amount, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, amount, status, created_at`,
		holdID, userID, amount, ledger.HoldPending,
	).Scan(&rm.ID, &rm.UserID, &rm.Amount, &rm.Status, &rm.CreatedAt)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to insert hold", err)
	}

	if err := r.appendEntry(ctx, tx, userID, ledger.EntryHold, amount, holdID.String()); err != nil {
		return nil, err
	}

	return &rm, nil
}

// Commit finalizes a pending hold. The amount already left available
// balance at hold time, so no balance row is touched. A commit on an
// already-terminal hold is a no-op.
func (r *LedgerRepository) Commit(ctx context.Context, tx DBTX, holdID uuid.UUID) error {
	var userID uuid.UUID
	var amount int64
	err := tx.QueryRow(ctx,
		`UPDATE holds SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING user_id, amount`,
		holdID, ledger.HoldCommitted, ledger.HoldPending,
	).Scan(&userID, &amount)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return r.terminalNoop(ctx, tx, holdID)
		}
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to commit hold", err)
	}

	return r.appendEntry(ctx, tx, userID, ledger.EntryCommit, amount, holdID.String())
}

// Release reverses a pending hold, crediting the amount back to
// available balance. A release on an already-terminal hold is a no-op.
func (r *LedgerRepository) Release(ctx context.Context, tx DBTX, holdID uuid.UUID) error {
	var userID uuid.UUID
	var amount int64
	err := tx.QueryRow(ctx,
		`UPDATE holds SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING user_id, amount`,
		holdID, ledger.HoldReleased, ledger.HoldPending,
	).Scan(&userID, &amount)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return r.terminalNoop(ctx, tx, holdID)
		}
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to release hold", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE balance_accounts
		 SET available_amount = available_amount + $2, updated_at = now()
		 WHERE user_id = $1`,
		userID, amount,
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to credit account on release", err)
	}

	return r.appendEntry(ctx, tx, userID, ledger.EntryRelease, amount, holdID.String())
}

// Credit tops up an account, creating it on first use. Idempotent per
// caller-supplied ref.
func (r *LedgerRepository) Credit(ctx context.Context, tx DBTX, userID uuid.UUID, amount int64, ref string) (*readmodel.AccountRM, error) {
	if amount <= 0 {
		return nil, infra.NewRepoErr(infra.KindConflict, "credit amount must be positive")
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (user_id, kind, amount, ref)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, ref) DO NOTHING`,
		userID, ledger.EntryCredit, amount, ref,
	)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to append credit entry", err)
	}
	if tag.RowsAffected() == 0 {
		// already applied
		return r.getAccount(ctx, tx, userID)
	}

	var rm readmodel.AccountRM
	err = tx.QueryRow(ctx,
		`INSERT INTO balance_accounts (user_id, available_amount)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET available_amount = balance_accounts.available_amount + EXCLUDED.available_amount,
		     updated_at = now()
		 RETURNING user_id, available_amount, updated_at`,
		userID, amount,
	).Scan(&rm.UserID, &rm.AvailableAmount, &rm.UpdatedAt)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to credit account", err)
	}
	return &rm, nil
}

// terminalNoop distinguishes "hold already finished" (fine, first
// transition won) from "hold does not exist".
func (r *LedgerRepository) terminalNoop(ctx context.Context, db DBTX, holdID uuid.UUID) error {
	var status string
	err := db.QueryRow(ctx, `SELECT status FROM holds WHERE id = $1`, holdID).Scan(&status)
	if err != nil {
		if pgconv.IsNoRows(err) {
			return infra.NewRepoErr(infra.KindNotFound, "hold not found")
		}
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to check hold status", err)
	}
	if !ledger.HoldStatus(status).IsTerminal() {
		return infra.NewRepoErr(infra.KindConflict, "hold in unexpected status "+status)
	}
	return nil
}

func (r *LedgerRepository) appendEntry(ctx context.Context, db DBTX, userID uuid.UUID, kind ledger.EntryKind, amount int64, ref string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO ledger_entries (user_id, kind, amount, ref)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, ref) DO NOTHING`,
		userID, kind, amount, ref,
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to append ledger entry", err)
	}
	return nil
}
