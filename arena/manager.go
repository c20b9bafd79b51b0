package arena

import (
	"errors"
	"sort"
	"sync"

	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/state"
)

var (
	ErrArenaNotFound    = errors.New("arena not found")
	ErrDuplicateArena   = errors.New("arena id already in use")
	ErrAlreadyInArena   = errors.New("player is already in another arena")
	ErrPlayerNotInArena = errors.New("player is not in any arena")
)

// Manager owns the running arenas and keeps every player in at most one of
// them. The exclusivity only holds for joins and leaves made through the
// manager.
type Manager struct {
	mutex     sync.RWMutex
	arenas    map[string]*Arena
	members   map[state.PlayerID]string
	observers []Observer
}

// NewManager creates a manager. The observers are attached to every arena it
// creates.
func NewManager(observers ...Observer) *Manager {
	return &Manager{
		arenas:    make(map[string]*Arena),
		members:   make(map[state.PlayerID]string),
		observers: observers,
	}
}

// Observe attaches o to every arena created from now on.
func (m *Manager) Observe(o Observer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.observers = append(m.observers, o)
}

// Create starts a new arena of mg.
func (m *Manager) Create(mg *minigame.Minigame, opts ...Option) (*Arena, error) {
	m.mutex.RLock()
	for _, o := range m.observers {
		opts = append(opts, WithObserver(o))
	}
	m.mutex.RUnlock()
	a := New(mg, opts...)

	m.mutex.Lock()
	if _, exists := m.arenas[a.ID()]; exists {
		m.mutex.Unlock()
		a.Close()
		return nil, ErrDuplicateArena
	}
	m.arenas[a.ID()] = a
	m.mutex.Unlock()

	logger.Log.Infof("arena %s created for minigame %s", a.ID(), mg.Name())
	return a, nil
}

func (m *Manager) Get(id string) (*Arena, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	a, ok := m.arenas[id]
	return a, ok
}

// Remove closes the arena and forgets it and its players.
func (m *Manager) Remove(id string) bool {
	m.mutex.Lock()
	a, ok := m.arenas[id]
	if ok {
		delete(m.arenas, id)
		m.forgetArena(id)
	}
	m.mutex.Unlock()

	if !ok {
		return false
	}
	a.Close()
	logger.Log.Infof("arena %s removed", id)
	return true
}

// List returns all arenas sorted by id.
func (m *Manager) List() []*Arena {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.sorted(func(*Arena) bool { return true })
}

// ListByMinigame returns the arenas of one minigame sorted by id.
func (m *Manager) ListByMinigame(name string) []*Arena {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.sorted(func(a *Arena) bool { return a.Minigame().Name() == name })
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.arenas)
}

// FindAvailable returns an arena of the named minigame that would accept
// player, or nil.
func (m *Manager) FindAvailable(name string, player state.PlayerID) *Arena {
	for _, a := range m.ListByMinigame(name) {
		if a.CanJoin(player) == nil {
			return a
		}
	}
	return nil
}

// Join adds player to the arena with the given id. A player already in a
// different arena is refused with ErrAlreadyInArena.
//
// The manager lock is held while the arena processes the join, so observers
// must not call back into the manager.
func (m *Manager) Join(arenaID string, player state.PlayerID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	a, ok := m.arenas[arenaID]
	if !ok {
		return ErrArenaNotFound
	}
	if current, ok := m.members[player]; ok && current != arenaID {
		if other, exists := m.arenas[current]; exists && other.Has(player) {
			return ErrAlreadyInArena
		}
		// The player left that arena without going through the manager.
		delete(m.members, player)
	}
	if err := a.Join(player); err != nil {
		return err
	}
	m.members[player] = arenaID
	return nil
}

// Leave removes player from its arena and returns that arena's id.
func (m *Manager) Leave(player state.PlayerID) (string, error) {
	m.mutex.Lock()
	arenaID, ok := m.members[player]
	if ok {
		delete(m.members, player)
	}
	a, exists := m.arenas[arenaID]
	m.mutex.Unlock()

	if !ok {
		return "", ErrPlayerNotInArena
	}
	if exists {
		a.Leave(player)
	}
	return arenaID, nil
}

// ArenaOf returns the arena player joined through the manager.
func (m *Manager) ArenaOf(player state.PlayerID) (*Arena, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	id, ok := m.members[player]
	if !ok {
		return nil, false
	}
	a, ok := m.arenas[id]
	return a, ok
}

// Restart empties the arena and resets it to its initial state, ready for a
// new game.
func (m *Manager) Restart(arenaID string) error {
	a, ok := m.Get(arenaID)
	if !ok {
		return ErrArenaNotFound
	}
	removed := a.Clear()

	m.mutex.Lock()
	for _, p := range removed {
		if m.members[p] == arenaID {
			delete(m.members, p)
		}
	}
	m.mutex.Unlock()

	a.Reset()
	logger.Log.Infof("arena %s restarted, %d players released", arenaID, len(removed))
	return nil
}

// UpdateAll runs one update on every arena.
func (m *Manager) UpdateAll() {
	for _, a := range m.List() {
		a.Update()
	}
}

// Shutdown closes and forgets every arena.
func (m *Manager) Shutdown() {
	for _, a := range m.List() {
		m.Remove(a.ID())
	}
}

func (m *Manager) forgetArena(id string) {
	for p, arenaID := range m.members {
		if arenaID == id {
			delete(m.members, p)
		}
	}
}

func (m *Manager) sorted(keep func(*Arena) bool) []*Arena {
	list := make([]*Arena, 0, len(m.arenas))
	for _, a := range m.arenas {
		if keep(a) {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID() < list[j].ID()
	})
	return list
}
