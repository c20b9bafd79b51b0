// Package arena runs minigames: an Arena is one live instance with its own
// players and current state.
package arena

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/state"
)

var (
	ErrJoinRefused = errors.New("join refused")
	ErrArenaClosed = errors.New("arena closed")
	ErrNotMember   = errors.New("player is not in the arena")
)

// Arena is a running instance of a minigame. All methods are safe for
// concurrent use; mutations of one arena are serialised.
type Arena struct {
	id       string
	minigame *minigame.Minigame
	created  time.Time
	now      func() time.Time

	mutex     sync.RWMutex
	players   map[state.PlayerID]struct{}
	machine   *state.Machine
	seq       uint64
	closed    bool
	observers []Observer
}

// Option configures an Arena.
type Option func(*Arena)

// WithID sets the arena id instead of a random UUID.
func WithID(id string) Option {
	return func(a *Arena) {
		a.id = id
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Arena) {
		a.now = now
	}
}

// WithObserver subscribes o to the arena's events.
func WithObserver(o Observer) Option {
	return func(a *Arena) {
		a.observers = append(a.observers, o)
	}
}

// New creates an arena of mg and enters its initial state. mg is published
// if it was not already.
func New(mg *minigame.Minigame, opts ...Option) *Arena {
	mg.Publish()

	a := &Arena{
		id:       uuid.New().String(),
		minigame: mg,
		now:      time.Now,
		players:  make(map[state.PlayerID]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.created = a.now()
	a.machine = state.NewMachine(mg.States(), a.now)

	a.mutex.Lock()
	a.machine.Start(a.view())
	a.mutex.Unlock()

	return a
}

func (a *Arena) ID() string {
	return a.id
}

func (a *Arena) Minigame() *minigame.Minigame {
	return a.minigame
}

func (a *Arena) CreatedAt() time.Time {
	return a.created
}

// Join adds player to the arena. Joining twice is a no-op. When the
// minigame's policy refuses the player the returned error wraps both
// ErrJoinRefused and the policy error, and nothing changes.
func (a *Arena) Join(player state.PlayerID) error {
	var err error
	a.mutate(func() []Event {
		if a.closed {
			err = ErrArenaClosed
			return nil
		}
		if _, ok := a.players[player]; ok {
			return nil
		}
		if refusal := a.allowJoin(player); refusal != nil {
			err = fmt.Errorf("%w: %w", ErrJoinRefused, refusal)
			e := a.newEvent(EventJoinRefused)
			e.Player = player
			e.Err = refusal
			return []Event{e}
		}
		a.players[player] = struct{}{}
		e := a.newEvent(EventJoined)
		e.Player = player
		return []Event{e}
	})
	return err
}

// CanJoin reports whether Join would accept player, without joining.
func (a *Arena) CanJoin(player state.PlayerID) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.closed {
		return ErrArenaClosed
	}
	if _, ok := a.players[player]; ok {
		return nil
	}
	if refusal := a.allowJoin(player); refusal != nil {
		return fmt.Errorf("%w: %w", ErrJoinRefused, refusal)
	}
	return nil
}

// Leave removes player. It reports false if the player was not in the arena.
func (a *Arena) Leave(player state.PlayerID) bool {
	left := false
	a.mutate(func() []Event {
		if _, ok := a.players[player]; !ok {
			return nil
		}
		delete(a.players, player)
		left = true
		e := a.newEvent(EventLeft)
		e.Player = player
		return []Event{e}
	})
	return left
}

// Clear removes every player and returns them.
func (a *Arena) Clear() []state.PlayerID {
	var removed []state.PlayerID
	a.mutate(func() []Event {
		removed = a.sortedPlayers()
		events := make([]Event, 0, len(removed))
		for _, p := range removed {
			delete(a.players, p)
			e := a.newEvent(EventLeft)
			e.Player = p
			events = append(events, e)
		}
		return events
	})
	return removed
}

// Players returns the members in a stable order.
func (a *Arena) Players() []state.PlayerID {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.sortedPlayers()
}

func (a *Arena) Has(player state.PlayerID) bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	_, ok := a.players[player]
	return ok
}

func (a *Arena) PlayerCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.players)
}

// State returns the current state, or nil for a minigame without states.
func (a *Arena) State() state.State {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.machine.Current()
}

// Closed reports whether Close has been called.
func (a *Arena) Closed() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.closed
}

// Advance moves to the next state and returns the state the arena is in
// afterwards. At the final state it does nothing.
func (a *Arena) Advance() (state.State, error) {
	var current state.State
	var err error
	a.mutate(func() []Event {
		from := a.machine.Current()
		if a.closed {
			current = from
			return nil
		}
		var moved bool
		moved, err = a.machine.Advance(a.view())
		current = a.machine.Current()
		if !moved {
			return nil
		}
		return []Event{a.transition(EventStateChanged, from)}
	})
	return current, err
}

// Reset puts the arena back into the initial state. Players stay.
func (a *Arena) Reset() state.State {
	var current state.State
	a.mutate(func() []Event {
		from := a.machine.Current()
		if a.closed || !a.machine.Reset(a.view()) {
			current = from
			return nil
		}
		current = a.machine.Current()
		return []Event{a.transition(EventReset, from)}
	})
	return current
}

// Update runs the current state's update hook and advances if the state is
// done. It reports whether the arena moved. A guard blocking the advance
// leaves the arena where it is and is logged at debug level.
func (a *Arena) Update() bool {
	moved := false
	var err error
	var blocked string
	a.mutate(func() []Event {
		if a.closed {
			return nil
		}
		from := a.machine.Current()
		moved, err = a.machine.Update(a.view())
		if err != nil {
			blocked = from.ID()
		}
		if !moved {
			return nil
		}
		return []Event{a.transition(EventStateChanged, from)}
	})
	if err != nil {
		logger.Log.Debugf("arena %s: update in state %s did not advance: %v", a.id, blocked, err)
	}
	return moved
}

// Guard installs a condition that must hold before the arena may leave from.
// A nil cond removes it.
func (a *Arena) Guard(from state.State, cond func(c state.Context) bool) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.machine.Guard(from, cond)
}

// Handle passes an action of player to the current state.
func (a *Arena) Handle(player state.PlayerID, actionData []byte) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.closed {
		return ErrArenaClosed
	}
	if _, ok := a.players[player]; !ok {
		return ErrNotMember
	}
	return a.machine.Handle(a.view(), player, actionData)
}

// Close retires the arena. The current state's exit hook runs once; further
// joins fail and transitions become no-ops.
func (a *Arena) Close() {
	a.mutate(func() []Event {
		if a.closed {
			return nil
		}
		a.machine.Exit(a.view())
		a.closed = true
		return []Event{a.newEvent(EventClosed)}
	})
}

// Snapshot returns a consistent copy of the arena.
func (a *Arena) Snapshot() Snapshot {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.snapshot()
}

// Observe subscribes o to future events.
func (a *Arena) Observe(o Observer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.observers = append(a.observers, o)
}

// mutate runs fn under the write lock and hands the events it returns to the
// observers once the lock is released.
func (a *Arena) mutate(fn func() []Event) {
	a.mutex.Lock()
	events := fn()
	observers := a.observers
	a.mutex.Unlock()

	for _, e := range events {
		for _, o := range observers {
			o.OnArenaEvent(e)
		}
	}
}

func (a *Arena) allowJoin(player state.PlayerID) error {
	policy := a.minigame.Policy()
	if policy == nil {
		return nil
	}
	return policy.AllowJoin(a.view(), a.machine.Current(), player)
}

func (a *Arena) newEvent(kind EventKind) Event {
	a.seq++
	return Event{
		Kind:     kind,
		Seq:      a.seq,
		ArenaID:  a.id,
		Minigame: a.minigame.Name(),
		Snapshot: a.snapshot(),
		At:       a.now(),
	}
}

func (a *Arena) transition(kind EventKind, from state.State) Event {
	e := a.newEvent(kind)
	e.From = from
	e.To = a.machine.Current()
	return e
}

func (a *Arena) snapshot() Snapshot {
	s := Snapshot{
		ArenaID:  a.id,
		Minigame: a.minigame.Name(),
		Players:  a.sortedPlayers(),
		Closed:   a.closed,
		Seq:      a.seq,
		At:       a.now(),
	}
	if current := a.machine.Current(); current != nil {
		s.StateKey, s.HasState = a.machine.CurrentKey()
		s.StateID = current.ID()
	}
	return s
}

func (a *Arena) sortedPlayers() []state.PlayerID {
	players := make([]state.PlayerID, 0, len(a.players))
	for p := range a.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i] < players[j]
	})
	return players
}

func (a *Arena) view() state.Context {
	return arenaView{a}
}

// arenaView is the state.Context handed to hooks. It reads the arena without
// locking, so it is only valid while the caller holds the arena lock.
type arenaView struct {
	a *Arena
}

func (v arenaView) ArenaID() string {
	return v.a.id
}

func (v arenaView) MinigameName() string {
	return v.a.minigame.Name()
}

func (v arenaView) Players() []state.PlayerID {
	return v.a.sortedPlayers()
}

func (v arenaView) PlayerCount() int {
	return len(v.a.players)
}

func (v arenaView) Elapsed() time.Duration {
	return v.a.machine.Elapsed()
}
