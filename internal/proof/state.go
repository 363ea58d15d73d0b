// Package proof implements the verification proof lifecycle for circled.
//
// Every proof advances through a fixed state machine: requested ->
// captureStarted -> awaitingUserVerification -> verified | rejected ->
// completed. Transitions outside that graph are programming errors and
// are rejected.
package proof

import "fmt"

// State is a proof session's lifecycle position.
type State string

const (
	StateRequested            State = "requested"
	StateCaptureStarted       State = "captureStarted"
	StateAwaitingVerification State = "awaitingUserVerification"
	StateVerified             State = "verified"
	StateRejected             State = "rejected"
	StateCompleted            State = "completed"
)

var validTransitions = map[State][]State{
	StateRequested:            {StateCaptureStarted},
	StateCaptureStarted:       {StateAwaitingVerification, StateRejected},
	StateAwaitingVerification: {StateVerified, StateRejected},
	StateVerified:             {StateCompleted},
	StateRejected:             {StateCompleted},
}

// CanTransition reports whether moving to next is legal from s.
func (s State) CanTransition(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted
}

// transition validates and applies a state change on a session.
func (sess *Session) transition(next State) error {
	if !sess.State.CanTransition(next) {
		return fmt.Errorf("illegal proof state transition %s -> %s", sess.State, next)
	}
	sess.State = next
	return nil
}
