package trackstate

import (
	"log/slog"
	"slices"
	"sync"
)

// Machine keeps the latest derived State of a room. Every event triggers a
// full recomputation from the current view, so the order in which
// superseded events arrive does not matter. It is safe for concurrent use.
type Machine struct {
	// serial orders recomputations so observers see states in order.
	serial sync.Mutex

	mu        sync.Mutex
	view      RoomView
	state     State
	observers []func(State)
}

// NewMachine creates a machine in the Disconnected state.
func NewMachine() *Machine {
	return &Machine{state: State{UI: Disconnected}}
}

// OnChange registers fn to be called with each new state. Observers run
// outside the state lock and may call State, but must not call SetView or
// Handle.
func (m *Machine) OnChange(fn func(State)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// SetView replaces the observed room and recomputes. A nil view means no
// room.
func (m *Machine) SetView(view RoomView) {
	m.mu.Lock()
	m.view = view
	m.mu.Unlock()
	m.recompute()
}

// Handle recomputes the state after a room event.
func (m *Machine) Handle(ev Event) {
	slog.Debug("room event", "kind", ev.Kind, "participant", ev.ParticipantID, "track", ev.TrackSID)
	m.recompute()
}

// Attach subscribes the machine to bus and returns the unsubscribe function.
func (m *Machine) Attach(bus *Bus) (cancel func()) {
	return bus.Subscribe(m.Handle)
}

// State returns the latest state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) recompute() {
	m.serial.Lock()
	defer m.serial.Unlock()

	m.mu.Lock()
	next := Derive(m.view)
	if next.Equal(m.state) {
		m.mu.Unlock()
		return
	}
	prev := m.state.UI
	m.state = next
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	if prev != next.UI {
		slog.Info("ui state changed", "from", prev, "to", next.UI)
	}
	for _, fn := range observers {
		fn(next)
	}
}
