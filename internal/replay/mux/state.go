package mux

// State is the lifecycle position of an output session.
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateOpened
	StateWriting
	StateFinalizing
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateValidating: "validating",
	StateOpened:     "opened",
	StateWriting:    "writing",
	StateFinalizing: "finalizing",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
