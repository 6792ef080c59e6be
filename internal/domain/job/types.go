package job

type State string

const (
	StateCreated    State = "created"
	StateDispatched State = "dispatched"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

func (s State) String() string {
	return string(s)
}

func (s State) IsValid() bool {
	switch s {
	case StateCreated, StateDispatched, StateSucceeded, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the state machine:
// created → dispatched → {succeeded, failed, timed_out},
// created → {failed, timed_out}. Terminal states have no exits.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateCreated:
		return next == StateDispatched || next == StateFailed || next == StateTimedOut
	case StateDispatched:
		return next.IsTerminal()
	default:
		return false
	}
}
