package errs

import "errors"

// Domain-specific sentinel errors for usecase layers
var (
	// Job errors
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotCancelable = errors.New("job already dispatched")
	ErrAlreadyTerminal  = errors.New("job already in terminal state")

	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrHoldNotFound      = errors.New("hold not found")

	// Idempotency errors
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrDuplicateRequest       = errors.New("idempotency key reused with different request")

	// Queue errors
	ErrEventNotFound = errors.New("pending event not found")

	// Operation errors
	ErrDatabaseOperationFailed = errors.New("database operation failed")
)
