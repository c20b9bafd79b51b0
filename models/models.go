// models/models.go
package models

import (
	"time"
)

// ArenaSnapshot is the last known state of an arena.
type ArenaSnapshot struct {
	ArenaID   string    `json:"arena_id"`
	Minigame  string    `json:"minigame"`
	StateKey  int       `json:"state_key"`
	StateID   string    `json:"state_id"`
	HasState  bool      `json:"has_state"`
	Players   []string  `json:"players"`
	Closed    bool      `json:"closed"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GameRecord is one finished game: the arena reached its final state.
type GameRecord struct {
	ID         uint      `json:"id"`
	ArenaID    string    `json:"arena_id"`
	Minigame   string    `json:"minigame"`
	Players    []string  `json:"players"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the time between leaving the initial state and reaching the
// final one.
func (r GameRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasPlayer reports whether player took part in the game.
func (r GameRecord) HasPlayer(player string) bool {
	for _, p := range r.Players {
		if p == player {
			return true
		}
	}
	return false
}

// RecordFilter selects game records. Zero fields match everything.
type RecordFilter struct {
	Minigame string
	Player   string
	Limit    int
}

// PlayerStats summarises the games of one player.
type PlayerStats struct {
	Player     string         `json:"player"`
	TotalGames int            `json:"total_games"`
	ByMinigame map[string]int `json:"by_minigame"`
	PlayTime   time.Duration  `json:"play_time"`
	LastPlayed time.Time      `json:"last_played"`
}
