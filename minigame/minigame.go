// Package minigame defines reusable rulesets: an ordered set of states, the
// settings that tune them and the rules for joining an arena.
package minigame

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wfunc/minigame/settings"
	"github.com/wfunc/minigame/state"
)

// ErrPublished is returned when changing a minigame after Publish.
var ErrPublished = errors.New("minigame already published")

// Minigame is a named ruleset. After Publish it is read-only and can be shared
// by any number of arenas without locking.
type Minigame struct {
	name     string
	states   *state.Registry
	settings *settings.Store
	policy   JoinPolicy

	publishOnce sync.Once
}

// Option configures a Minigame.
type Option func(*Minigame)

// WithSettings attaches the settings store of the minigame.
func WithSettings(s *settings.Store) Option {
	return func(m *Minigame) {
		m.settings = s
	}
}

// WithJoinPolicy sets the rule deciding who may join an arena.
func WithJoinPolicy(p JoinPolicy) Option {
	return func(m *Minigame) {
		m.policy = p
	}
}

// New creates an unpublished minigame without states.
func New(name string, opts ...Option) *Minigame {
	m := &Minigame{
		name:   name,
		states: state.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Minigame) Name() string {
	return m.name
}

// AddState registers s at key.
func (m *Minigame) AddState(key int, s state.State) error {
	if m.states.Frozen() {
		return ErrPublished
	}
	if err := m.states.Put(key, s); err != nil {
		return fmt.Errorf("minigame %s: %w", m.name, err)
	}
	return nil
}

// Publish freezes the state registry.
func (m *Minigame) Publish() {
	m.publishOnce.Do(m.states.Freeze)
}

func (m *Minigame) Published() bool {
	return m.states.Frozen()
}

// States returns the state registry.
func (m *Minigame) States() *state.Registry {
	return m.states
}

// InitialState returns the state with the smallest key, or nil when the
// minigame has no states.
func (m *Minigame) InitialState() state.State {
	e, ok := m.states.First()
	if !ok {
		return nil
	}
	return e.State
}

// FinalState returns the state with the largest key, or nil when the
// minigame has no states.
func (m *Minigame) FinalState() state.State {
	e, ok := m.states.Last()
	if !ok {
		return nil
	}
	return e.State
}

// Settings returns the settings store, which may be nil.
func (m *Minigame) Settings() *settings.Store {
	return m.settings
}

// Policy returns the join policy, which may be nil.
func (m *Minigame) Policy() JoinPolicy {
	return m.policy
}

// StateInfo describes one registered state.
type StateInfo struct {
	Key int    `json:"key"`
	ID  string `json:"id"`
}

// Info describes a minigame for listings.
type Info struct {
	Name   string      `json:"name"`
	States []StateInfo `json:"states"`
}

func (m *Minigame) Describe() Info {
	entries := m.states.Entries()
	info := Info{
		Name:   m.name,
		States: make([]StateInfo, 0, len(entries)),
	}
	for _, e := range entries {
		info.States = append(info.States, StateInfo{Key: e.Key, ID: e.State.ID()})
	}
	return info
}
