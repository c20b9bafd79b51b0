package state

import "time"

// PlayerID identifies a player. The host decides what it contains; this
// package only compares it for equality.
type PlayerID string

// Context is the view of an arena handed to state hooks.
// This breaks the import cycle between arena and state.
//
// A Context is only valid for the duration of the hook call. Hooks run while
// the arena is locked and must not call back into the arena.
type Context interface {
	ArenaID() string
	MinigameName() string
	Players() []PlayerID
	PlayerCount() int
	// Elapsed is the time spent in the current state.
	Elapsed() time.Duration
}
