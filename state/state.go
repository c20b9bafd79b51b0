package state

import (
	"errors"
)

// State is one phase of a minigame. Each phase supplies its own behaviour;
// states are compared by identity, so implementations should be pointer types.
type State interface {
	ID() string
	OnEnter(c Context)
	OnExit(c Context)
	// OnUpdate is called on every arena tick. Returning true marks the phase
	// as done and moves the arena on to the next state.
	OnUpdate(c Context) bool
	HandleAction(c Context, player PlayerID, actionData []byte) error
}

var (
	// ErrTransitionNotAllowed is returned when a guard blocks a transition.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrActionNotSupported is returned by states that take no player actions.
	ErrActionNotSupported = errors.New("action not supported in this state")
	// ErrNoState is returned when acting on a machine without states.
	ErrNoState = errors.New("no state")
	// ErrUnknownState is returned for states that are not part of a registry.
	ErrUnknownState = errors.New("state not in registry")
)

// Base is an embeddable State with no-op hooks.
type Base struct {
	Name string
}

// NewBase returns a Base state named id.
func NewBase(id string) *Base {
	return &Base{Name: id}
}

func (s *Base) ID() string {
	return s.Name
}

func (s *Base) OnEnter(c Context) {}

func (s *Base) OnExit(c Context) {}

func (s *Base) OnUpdate(c Context) bool {
	return false
}

func (s *Base) HandleAction(c Context, player PlayerID, actionData []byte) error {
	return ErrActionNotSupported
}
