package ingest

// State is the orchestrator's position in the run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateFetchingLeaderboard
	StateFetchingPositions
	StatePersisting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingLeaderboard:
		return "fetching_leaderboard"
	case StateFetchingPositions:
		return "fetching_positions"
	case StatePersisting:
		return "persisting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// validNext lists the transitions the orchestrator may take. Failed is
// reachable from every non-terminal state.
var validNext = map[State][]State{
	StateIdle:                {StateFetchingLeaderboard, StateFailed},
	StateFetchingLeaderboard: {StateFetchingPositions, StateFailed},
	StateFetchingPositions:   {StatePersisting, StateFailed},
	StatePersisting:          {StateCompleted, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}
