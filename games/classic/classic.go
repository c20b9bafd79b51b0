// Package classic is the bundled round-based minigame: players gather in a
// lobby, a countdown runs, they score points for one round, and the results
// stay up until the arena is recycled.
package classic

import (
	"embed"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/settings"
	"github.com/wfunc/minigame/state"
)

const Name = "classic"

// State keys. The gaps leave room for phases added later.
const (
	KeyWaiting   = 10
	KeyCountdown = 20
	KeyPlaying   = 30
	KeyEnding    = 40
)

// Setting keys and their defaults when no settings store is attached.
const (
	SettingMinPlayers    = "players.min"
	SettingMaxPlayers    = "players.max"
	SettingCountdown     = "countdown"
	SettingRoundDuration = "round_duration"

	defaultMinPlayers    = 2
	defaultMaxPlayers    = 8
	defaultCountdown     = 5 * time.Second
	defaultRoundDuration = 60 * time.Second
)

//go:embed defaults.yaml
var defaultsFS embed.FS

// Game is the classic minigame together with its per-arena scoreboards.
// State values are shared by every arena, so everything per arena is keyed
// by arena id.
type Game struct {
	minigame *minigame.Minigame
	settings *settings.Store

	mutex  sync.Mutex
	scores map[string]map[state.PlayerID]int
	rand   func(n int) int
}

// Settings opens <dir>/classic.yaml seeded with the bundled defaults. A load
// error is returned together with a usable store.
func Settings(dir string) (*settings.Store, error) {
	store, err := settings.New(filepath.Join(dir, Name+".yaml"), settings.WithDefaults(defaultsFS, "defaults.yaml"))
	if err != nil {
		return nil, err
	}
	return store, store.Load()
}

// New assembles the minigame. store may be nil, then built-in defaults apply.
func New(store *settings.Store) (*Game, error) {
	g := &Game{
		settings: store,
		scores:   make(map[string]map[state.PlayerID]int),
		rand:     rand.Intn,
	}

	opts := []minigame.Option{
		minigame.WithJoinPolicy(minigame.AllOf(
			minigame.JoinableIn("waiting", "countdown"),
			minigame.JoinPolicyFunc(g.allowSeat),
		)),
	}
	if store != nil {
		opts = append(opts, minigame.WithSettings(store))
	}
	g.minigame = minigame.New(Name, opts...)

	for _, entry := range []struct {
		key   int
		state state.State
	}{
		{KeyWaiting, &waitingState{Base: state.Base{Name: "waiting"}, game: g}},
		{KeyCountdown, &countdownState{Base: state.Base{Name: "countdown"}, game: g}},
		{KeyPlaying, &playingState{Base: state.Base{Name: "playing"}, game: g}},
		{KeyEnding, &endingState{Base: state.Base{Name: "ending"}, game: g}},
	} {
		if err := g.minigame.AddState(entry.key, entry.state); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Game) Minigame() *minigame.Minigame {
	return g.minigame
}

// Scores returns a copy of the arena's scoreboard.
func (g *Game) Scores(arenaID string) map[state.PlayerID]int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	out := make(map[state.PlayerID]int, len(g.scores[arenaID]))
	for p, s := range g.scores[arenaID] {
		out[p] = s
	}
	return out
}

// Standing is one line of a ranking.
type Standing struct {
	Player state.PlayerID `json:"player"`
	Score  int            `json:"score"`
}

// Ranking returns the arena's scoreboard, best first.
func (g *Game) Ranking(arenaID string) []Standing {
	scores := g.Scores(arenaID)
	ranking := make([]Standing, 0, len(scores))
	for p, s := range scores {
		ranking = append(ranking, Standing{Player: p, Score: s})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].Player < ranking[j].Player
	})
	return ranking
}

// OnArenaEvent drops the scoreboard of closed arenas.
func (g *Game) OnArenaEvent(e arena.Event) {
	if e.Kind != arena.EventClosed || e.Minigame != Name {
		return
	}
	g.clearScores(e.ArenaID)
}

func (g *Game) allowSeat(c state.Context, current state.State, player state.PlayerID) error {
	return minigame.MaxPlayers(g.intSetting(SettingMaxPlayers, defaultMaxPlayers)).AllowJoin(c, current, player)
}

func (g *Game) intSetting(key string, def int) int {
	if g.settings == nil {
		return def
	}
	return g.settings.Int(key, def)
}

func (g *Game) durationSetting(key string, def time.Duration) time.Duration {
	if g.settings == nil {
		return def
	}
	return g.settings.Duration(key, def)
}

func (g *Game) startScores(arenaID string, players []state.PlayerID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	board := make(map[state.PlayerID]int, len(players))
	for _, p := range players {
		board[p] = 0
	}
	g.scores[arenaID] = board
}

func (g *Game) addScore(arenaID string, player state.PlayerID, points int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	board, ok := g.scores[arenaID]
	if !ok {
		board = make(map[state.PlayerID]int)
		g.scores[arenaID] = board
	}
	board[player] += points
}

func (g *Game) clearScores(arenaID string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.scores, arenaID)
}
