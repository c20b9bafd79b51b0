package state

import (
	"time"
)

// Machine walks the states of a registry in ascending key order.
//
// Machine is not safe for concurrent use; the arena that owns it serialises
// every call.
type Machine struct {
	registry *Registry
	current  Entry
	active   bool
	entered  time.Time
	guards   map[State]func(c Context) bool
	now      func() time.Time
}

// NewMachine creates a machine over registry. now defaults to time.Now.
func NewMachine(registry *Registry, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		registry: registry,
		guards:   make(map[State]func(c Context) bool),
		now:      now,
	}
}

// Start enters the first state. It does nothing for an empty registry.
func (m *Machine) Start(c Context) {
	first, ok := m.registry.First()
	if !ok {
		return
	}
	m.enter(c, first)
}

// Current returns the current state, or nil when there is none.
func (m *Machine) Current() State {
	if !m.active {
		return nil
	}
	return m.current.State
}

// CurrentKey returns the registry key of the current state.
func (m *Machine) CurrentKey() (int, bool) {
	return m.current.Key, m.active
}

// Elapsed returns the time spent in the current state.
func (m *Machine) Elapsed() time.Duration {
	if !m.active {
		return 0
	}
	return m.now().Sub(m.entered)
}

// Guard installs a condition that must hold before the machine may leave from.
// A nil cond removes the guard.
func (m *Machine) Guard(from State, cond func(c Context) bool) error {
	if !m.registry.Contains(from) {
		return ErrUnknownState
	}
	if cond == nil {
		delete(m.guards, from)
		return nil
	}
	m.guards[from] = cond
	return nil
}

// Advance moves to the state with the next existing key. It reports false
// without error when there is no state or the final state is already current.
func (m *Machine) Advance(c Context) (bool, error) {
	if !m.active {
		return false, nil
	}
	next, ok := m.registry.Next(m.current.Key)
	if !ok {
		return false, nil
	}
	if cond, ok := m.guards[m.current.State]; ok && !cond(c) {
		return false, ErrTransitionNotAllowed
	}
	m.current.State.OnExit(c)
	m.enter(c, next)
	return true, nil
}

// Reset re-enters the first state. It reports false for an empty registry.
func (m *Machine) Reset(c Context) bool {
	first, ok := m.registry.First()
	if !ok {
		return false
	}
	if m.active {
		m.current.State.OnExit(c)
	}
	m.enter(c, first)
	return true
}

// Update runs the current state's OnUpdate hook and advances when the state
// reports it is done.
func (m *Machine) Update(c Context) (bool, error) {
	if !m.active {
		return false, nil
	}
	if !m.current.State.OnUpdate(c) {
		return false, nil
	}
	return m.Advance(c)
}

// Handle passes a player action to the current state.
func (m *Machine) Handle(c Context, player PlayerID, actionData []byte) error {
	if !m.active {
		return ErrNoState
	}
	return m.current.State.HandleAction(c, player, actionData)
}

// Exit runs the exit hook of the current state without moving. The owner must
// not use the machine afterwards.
func (m *Machine) Exit(c Context) {
	if !m.active {
		return
	}
	m.current.State.OnExit(c)
}

func (m *Machine) enter(c Context, e Entry) {
	m.current = e
	m.active = true
	m.entered = m.now()
	e.State.OnEnter(c)
}
