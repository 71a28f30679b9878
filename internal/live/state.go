package live

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
)

// State is the binding state of a Session.
type State string

const (
	Idle    State = "IDLE"
	Loading State = "LOADING"
	Bound   State = "BOUND"
	Error   State = "ERROR"
)

// EventStateChanged is published on every transition.
const EventStateChanged = "session.state_changed"

var validTransitions = map[State][]State{
	Idle:    {Loading},
	Loading: {Bound, Error, Idle},
	Bound:   {Loading, Idle},
	Error:   {Loading, Idle},
}

// Machine tracks and enforces binding state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state on behalf of conversationID.
// Returns an error if the transition is not allowed.
func (m *Machine) Transition(to State, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.Event{
		Kind:           EventStateChanged,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
		Payload:        StateChange{From: from, To: to},
	})
	return nil
}

// StateChange is the payload for state change events.
type StateChange struct {
	From State
	To   State
}
