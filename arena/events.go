package arena

import (
	"time"

	"github.com/wfunc/minigame/state"
)

// EventKind tells what happened to an arena.
type EventKind int

const (
	EventJoined EventKind = iota + 1
	EventJoinRefused
	EventLeft
	EventStateChanged
	EventReset
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventJoinRefused:
		return "join_refused"
	case EventLeft:
		return "left"
	case EventStateChanged:
		return "state_changed"
	case EventReset:
		return "reset"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event describes one change to an arena. Seq increases by one for every
// event of the same arena; observers may receive events of concurrent
// operations out of order and can restore the order with it.
type Event struct {
	Kind     EventKind
	Seq      uint64
	ArenaID  string
	Minigame string
	Player   state.PlayerID
	From     state.State
	To       state.State
	Err      error
	Snapshot Snapshot
	At       time.Time
}

// Observer receives arena events. It is called after the arena lock has been
// released, from the goroutine that caused the event, and must not block.
type Observer interface {
	OnArenaEvent(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnArenaEvent(e Event) {
	f(e)
}

// Snapshot is a consistent copy of an arena's state.
type Snapshot struct {
	ArenaID  string           `json:"arena_id"`
	Minigame string           `json:"minigame"`
	StateKey int              `json:"state_key"`
	StateID  string           `json:"state_id"`
	HasState bool             `json:"has_state"`
	Players  []state.PlayerID `json:"players"`
	Closed   bool             `json:"closed"`
	Seq      uint64           `json:"seq"`
	At       time.Time        `json:"at"`
}
