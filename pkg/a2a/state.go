package a2a

// State is a canonical A2A task state. Wire values are kebab-case.
type State string

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input-required"
	StateCompleted     State = "completed"
	StateCanceled      State = "canceled"
	StateFailed        State = "failed"
	// StateUnknown is accepted only when reading externally-written records.
	StateUnknown State = "unknown"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCanceled, StateFailed:
		return true
	}
	return false
}

// validTransitions is the task status state machine:
//
//	submitted ──► working ──► completed | failed | canceled
//	working ──► input-required ──► working | canceled
var validTransitions = map[State][]State{
	StateSubmitted:     {StateWorking, StateCanceled},
	StateWorking:       {StateCompleted, StateFailed, StateCanceled, StateInputRequired},
	StateInputRequired: {StateWorking, StateCanceled},
}

// CanTransition reports whether from → to is a legal status transition.
// Transitions out of the unknown state are permitted so that externally
// written records can be adopted.
func CanTransition(from, to State) bool {
	if from == StateUnknown {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
