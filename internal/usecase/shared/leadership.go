package shared

// Leadership reports whether this instance currently holds the leader
// lease. Handlers use it to choose between acting on a request and
// buffering it for the leader.
type Leadership interface {
	IsLeader() bool
}
