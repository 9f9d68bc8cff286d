package session

// State is the lifecycle state of a session's current request.
type State int

const (
	// StateIdle means no request is in flight.
	StateIdle State = iota

	// StateDispatching means the first attempt is in flight.
	StateDispatching

	// StateRetrying means a retry attempt is pending or in flight.
	StateRetrying

	// StateSucceeded means a response was delivered and not classified as blocked.
	StateSucceeded

	// StateBlocked means a response was delivered and classified as blocked.
	StateBlocked

	// StateFailed means the transport failed after all retries.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateBlocked:
		return "blocked"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state ends a request.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateBlocked || s == StateFailed
}
