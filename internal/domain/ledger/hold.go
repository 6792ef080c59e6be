package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidHoldAmount = errors.New("hold amount must be positive")
	ErrHoldNotPending    = errors.New("hold is not pending")
)

type HoldStatus string

const (
	HoldPending   HoldStatus = "pending"
	HoldCommitted HoldStatus = "committed"
	HoldReleased  HoldStatus = "released"
)

func (s HoldStatus) IsValid() bool {
	switch s {
	case HoldPending, HoldCommitted, HoldReleased:
		return true
	default:
		return false
	}
}

// Terminal hold rows are immutable history: pending→committed and
// pending→released are the only transitions, whichever lands first wins.
func (s HoldStatus) IsTerminal() bool {
	return s == HoldCommitted || s == HoldReleased
}

func (s HoldStatus) CanTransitionTo(next HoldStatus) bool {
	return s == HoldPending && next.IsTerminal()
}

// Hold is a provisional reservation of funds pending a job outcome. The
// amount leaves available balance at hold time and returns only on release.
type Hold struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Amount    int64
	Status    HoldStatus
	CreatedAt time.Time
}

// EntryKind tags audit rows in the ledger_entries table.
type EntryKind string

const (
	EntryHold    EntryKind = "hold"
	EntryCommit  EntryKind = "commit"
	EntryRelease EntryKind = "release"
	EntryCredit  EntryKind = "credit"
)
