package publish

import (
	"context"
	"fmt"
	"sync"
)

const (
	invalidTransitionTemplateConstant = "invalid publish state transition %s -> %s"
)

// State describes where an endpoint/line pair sits in the publish lifecycle.
type State string

// Publish lifecycle states.
const (
	StateUnbound         State = State("unbound")
	StateBound           State = State("bound")
	StateTransmitting    State = State("transmitting")
	StateSynced          State = State("synced")
	StateFailedRetryable State = State("failed-retryable")
	StateFailedTerminal  State = State("failed-terminal")
)

var allowedStateTransitions = map[State]map[State]struct{}{
	StateUnbound: {
		StateBound:          {},
		StateFailedTerminal: {},
	},
	StateBound: {
		StateBound:          {},
		StateTransmitting:   {},
		StateFailedTerminal: {},
	},
	StateTransmitting: {
		StateSynced:          {},
		StateFailedRetryable: {},
		StateFailedTerminal:  {},
	},
	StateSynced: {
		StateBound:          {},
		StateTransmitting:   {},
		StateFailedTerminal: {},
	},
	StateFailedRetryable: {
		StateBound:          {},
		StateTransmitting:   {},
		StateFailedTerminal: {},
	},
	StateFailedTerminal: {},
}

// CanTransitionTo reports whether next is reachable from state in one step.
func (state State) CanTransitionTo(next State) bool {
	targets, known := allowedStateTransitions[state]
	if !known {
		return false
	}
	_, allowed := targets[next]
	return allowed
}

// Terminal reports whether the state halts the workflow.
func (state State) Terminal() bool {
	return state == StateFailedTerminal
}

// FailureState maps an error to the failed state it produces.
func FailureState(err error) State {
	if IsRetryable(err) {
		return StateFailedRetryable
	}
	return StateFailedTerminal
}

// InvalidTransitionError indicates an attempt to move between unconnected states.
type InvalidTransitionError struct {
	From State
	To   State
}

func (transitionError InvalidTransitionError) Error() string {
	return fmt.Sprintf(invalidTransitionTemplateConstant, transitionError.From, transitionError.To)
}

// Transition captures a single state change for journaling.
type Transition struct {
	Operation Step
	Endpoint  EndpointName
	Line      LineName
	From      State
	To        State
	Message   string
	Commits   int
}

// TransitionRecorder persists state transitions.
type TransitionRecorder interface {
	RecordTransition(executionContext context.Context, transition Transition) error
}

type stateKey struct {
	endpoint EndpointName
	line     LineName
}

// stateBook remembers the last state reached per endpoint/line pair for the lifetime of a Service.
type stateBook struct {
	mutex  sync.Mutex
	states map[stateKey]State
}

func newStateBook() *stateBook {
	return &stateBook{states: map[stateKey]State{}}
}

func (book *stateBook) current(endpoint EndpointName, line LineName, fallback State) State {
	book.mutex.Lock()
	defer book.mutex.Unlock()
	state, found := book.states[stateKey{endpoint: endpoint, line: line}]
	if !found || state == StateFailedTerminal {
		return fallback
	}
	return state
}

func (book *stateBook) store(endpoint EndpointName, line LineName, state State) {
	book.mutex.Lock()
	defer book.mutex.Unlock()
	book.states[stateKey{endpoint: endpoint, line: line}] = state
}
