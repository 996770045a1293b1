package orchestrator

import "errors"

// BlockState is a block height's position in the cross-layer lifecycle.
type BlockState uint8

const (
	Idle BlockState = iota
	Mining
	Mined
	Executed
	Stored
	Submitted
	Finalized
)

func (s BlockState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Mining:
		return "Mining"
	case Mined:
		return "Mined"
	case Executed:
		return "Executed"
	case Stored:
		return "Stored"
	case Submitted:
		return "Submitted"
	case Finalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// ErrInvalidTransition is returned when an event arrives out of order for
// a block height's current state (e.g. a DAStored before a BlockApplied).
var ErrInvalidTransition = errors.New("orchestrator: invalid state transition")

// transitions maps (current state, driving event) to the next state. Only
// the events that actually advance the machine appear; anything else is
// either informational (doesn't move the state, e.g. TxValidated) or
// invalid for that state.
var transitions = map[BlockState]map[EventKind]BlockState{
	Idle: {
		BlockProposed: Mining,
	},
	Mining: {
		BlockMined: Mined,
	},
	Mined: {
		BlockValidated: Mined, // informational, no state change
		BlockApplied:   Executed,
	},
	Executed: {
		StateCommitted: Executed, // informational
		DAStored:       Stored,
	},
	Stored: {
		BatchSubmitted: Submitted,
	},
	Submitted: {
		BatchFinalized: Finalized,
	},
}

// StateMachine tracks one BlockState per block height. Reorgs drop the
// abandoned branch's height entirely (further events for it are rejected)
// and reset the new branch's height to Mining.
type StateMachine struct {
	states   map[uint64]BlockState
	dropped  map[uint64]bool
}

// NewStateMachine constructs an empty StateMachine.
func NewStateMachine() *StateMachine {
	return &StateMachine{states: make(map[uint64]BlockState), dropped: make(map[uint64]bool)}
}

// State returns height's current state, Idle if never observed.
func (m *StateMachine) State(height uint64) BlockState {
	return m.states[height]
}

// Apply drives height's state machine with ev, returning
// ErrInvalidTransition if ev cannot legally follow the height's current
// state. Events for a height dropped by a prior reorg are rejected with
// ErrInvalidTransition, matching the module's "downstream events for the
// abandoned branch are dropped."
func (m *StateMachine) Apply(height uint64, kind EventKind) error {
	if m.dropped[height] {
		return ErrInvalidTransition
	}
	cur := m.states[height]
	next, ok := transitions[cur][kind]
	if !ok {
		return ErrInvalidTransition
	}
	m.states[height] = next
	return nil
}

// Reorg sends height back to Mining (new branch) and marks every height in
// abandonedHeights as dropped, so any in-flight event for the abandoned
// branch is rejected rather than silently mutating stale state.
func (m *StateMachine) Reorg(height uint64, abandonedHeights []uint64) {
	for _, h := range abandonedHeights {
		m.dropped[h] = true
		delete(m.states, h)
	}
	delete(m.dropped, height)
	m.states[height] = Mining
}
