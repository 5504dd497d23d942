// Package execution holds the per-run state shared between the traversal
// loop and the vertex processors.
package execution

import "fmt"

// State is the verdict of a processor and the lifecycle state of a run.
type State int

const (
	StateIdle State = iota
	StateExecuting
	StateCompleted
	StateCanceled
	StateFailed

	// StateIncorrectProcessorForVertex is returned by a processor handed a
	// vertex kind it does not accept. It is never a run state.
	StateIncorrectProcessorForVertex
)

var stateNames = [...]string{
	StateIdle:                        "idle",
	StateExecuting:                   "executing",
	StateCompleted:                   "completed",
	StateCanceled:                    "canceled",
	StateFailed:                      "failed",
	StateIncorrectProcessorForVertex: "incorrect_processor",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState maps a state name back to its State.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return State(s), true
		}
	}
	return 0, false
}

// IsTerminal reports whether a run in state s has finished.
func IsTerminal(s State) bool {
	switch s {
	case StateCompleted, StateCanceled, StateFailed:
		return true
	default:
		return false
	}
}

// Transition validates a run state change.
//
//	idle      -> executing | canceled | failed
//	executing -> executing | completed | canceled | failed
//
// Terminal states have no successors.
func Transition(from, to State) error {
	if !allowed(from, to) {
		return fmt.Errorf("disallowed run transition: %s -> %s", from, to)
	}
	return nil
}

func allowed(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateExecuting || to == StateCanceled || to == StateFailed
	case StateExecuting:
		return to == StateExecuting || IsTerminal(to)
	default:
		return false
	}
}

// Handle observes a run started elsewhere.
type Handle interface {
	// Done is closed once the run reaches a terminal state.
	Done() <-chan struct{}
	State() State
	Err() error
}
