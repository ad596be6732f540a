package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/room"
)

// State represents a chat session lifecycle state.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Joined       State = "JOINED"
	Disconnected State = "DISCONNECTED"
	Reconnecting State = "RECONNECTING"
	Closed       State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:         {Connecting, Closed},
	Connecting:   {Joined, Disconnected, Reconnecting, Closed},
	Joined:       {Disconnected, Closed},
	Disconnected: {Reconnecting, Closed},
	Reconnecting: {Joined, Disconnected, Closed},
	Closed:       {},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Machine tracks and enforces one session's state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	room    room.ID
	bus     *bus.Bus
}

// NewMachine creates a new state machine for room starting in Idle state.
func NewMachine(roomID room.ID, b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		room:    roomID,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the machine is currently in s.
func (m *Machine) Is(s State) bool {
	return m.Current() == s
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.current, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.Event{
		Kind:      bus.KindStatusChanged,
		Timestamp: time.Now(),
		Payload: StatusChange{
			Room: m.room,
			From: from,
			To:   to,
		},
	})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	Room room.ID
	From State
	To   State
}
