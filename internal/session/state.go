// Package session implements the per-session state machine (C2): the
// legal transitions a session walks through from wake to reply, modeled
// as a declarative event table instead of hand-rolled conditionals.
package session

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// State is the session lifecycle position. Values are ordered so that
// int(State) is non-decreasing along any legal transition path, matching
// the invariant that a session's state sequence never regresses.
type State int

const (
	StateListening State = iota
	StateProcessing
	StateSpeaking
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

func parseState(name string) (State, error) {
	switch name {
	case "LISTENING":
		return StateListening, nil
	case "PROCESSING":
		return StateProcessing, nil
	case "SPEAKING":
		return StateSpeaking, nil
	case "ENDED":
		return StateEnded, nil
	default:
		return 0, fmt.Errorf("unknown session state %q", name)
	}
}

// Transition event names, matching spec.md's LISTENING/PROCESSING/SPEAKING/ENDED diagram.
const (
	EventAudioEnd   = "audio_end"
	EventReplyReady = "reply_ready"
	EventComplete   = "complete"
	EventCancel     = "cancel"
)

// ErrIllegalTransition is returned when an event does not apply from the
// machine's current state.
var ErrIllegalTransition = fmt.Errorf("illegal session state transition")

// Machine wraps a looplab/fsm instance configured with the exact
// transition table from spec.md §4.2. It is not safe for concurrent use;
// callers serialize access per session (the registry holds one Machine
// per session guarded by its own table lock).
type Machine struct {
	fsm *fsm.FSM
}

// NewMachine constructs a state machine starting in StateListening.
func NewMachine() *Machine {
	return NewMachineAt(StateListening)
}

// NewMachineAt constructs a machine already in the given state, used when
// rehydrating a session's machine for a resumed connection.
func NewMachineAt(initial State) *Machine {
	return &Machine{
		fsm: fsm.NewFSM(
			initial.String(),
			fsm.Events{
				{Name: EventAudioEnd, Src: []string{StateListening.String()}, Dst: StateProcessing.String()},
				{Name: EventReplyReady, Src: []string{StateProcessing.String()}, Dst: StateSpeaking.String()},
				{Name: EventComplete, Src: []string{StateSpeaking.String()}, Dst: StateEnded.String()},
				{
					Name: EventCancel,
					Src:  []string{StateListening.String(), StateProcessing.String(), StateSpeaking.String()},
					Dst:  StateEnded.String(),
				},
			},
			fsm.Callbacks{},
		),
	}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	s, _ := parseState(m.fsm.Current())
	return s
}

// Fire applies the named event. It returns ErrIllegalTransition (wrapped)
// if the event does not apply from the current state; ENDED is terminal
// and rejects every further event.
func (m *Machine) Fire(ctx context.Context, event string) (State, error) {
	if err := m.fsm.Event(ctx, event); err != nil {
		return m.Current(), fmt.Errorf("%w: %s from %s", ErrIllegalTransition, event, m.fsm.Current())
	}
	return m.Current(), nil
}

// CanFire reports whether event currently applies, without mutating state.
func (m *Machine) CanFire(event string) bool {
	return m.fsm.Can(event)
}
