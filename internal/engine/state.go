package engine

import "fmt"

// State is a step of the transfer state machine.
//
//	Planning -> SessionOpen -> PartInFlight(n)... -> PartsComplete -> Committing -> Committed
//	                 \______________________\_______________________\___> Aborting -> Aborted
type State int

const (
	Idle State = iota
	Planning
	SessionOpen
	PartInFlight
	PartsComplete
	Committing
	Committed
	Aborting
	Aborted
	Failed
)

var stateNames = map[State]string{
	Idle:          "idle",
	Planning:      "planning",
	SessionOpen:   "session_open",
	PartInFlight:  "part_in_flight",
	PartsComplete: "parts_complete",
	Committing:    "committing",
	Committed:     "committed",
	Aborting:      "aborting",
	Aborted:       "aborted",
	Failed:        "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Committed || s == Aborted || s == Failed
}

// StateHook observes transitions. part is set for PartInFlight and zero otherwise.
// Hooks run on worker goroutines and must be safe for concurrent use.
type StateHook func(state State, part int32)
