package feed

// State is the connection state of a Manager. Exactly one state is
// active per manager at any time.
type State int

const (
	// StateIdle means the manager has never connected or was torn down.
	StateIdle State = iota
	// StateConnecting means a push attempt (or failover within a cycle)
	// is in progress.
	StateConnecting
	// StateOpen means the feed is logically live, via push or the pull
	// fallback.
	StateOpen
	// StateClosing means a deliberate shutdown is in progress.
	StateClosing
	// StateClosed means the push channel is down between failover cycles.
	StateClosed
	// StateDisabled means the circuit breaker has tripped; only an
	// explicit Reset followed by Connect resumes activity.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// TransportKind identifies which transport is currently delivering.
type TransportKind string

const (
	TransportNone TransportKind = "none"
	TransportPush TransportKind = "push"
	TransportPull TransportKind = "pull"
)
