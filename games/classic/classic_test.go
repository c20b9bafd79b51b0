package classic

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/state"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func newClassicArena(t *testing.T) (*Game, *arena.Arena, *clock) {
	store, err := Settings(t.TempDir())
	require.NoError(t, err)
	g, err := New(store)
	require.NoError(t, err)

	c := &clock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	a := arena.New(g.Minigame(), arena.WithID("c1"), arena.WithClock(c.Now), arena.WithObserver(g))
	return g, a, c
}

func TestClassic_States(t *testing.T) {
	g, err := New(nil)
	require.NoError(t, err)
	mg := g.Minigame()

	assert.Equal(t, "waiting", mg.InitialState().ID())
	assert.Equal(t, "ending", mg.FinalState().ID())

	var keys []int
	for _, e := range mg.States().Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []int{KeyWaiting, KeyCountdown, KeyPlaying, KeyEnding}, keys)
}

func TestClassic_Round(t *testing.T) {
	g, a, c := newClassicArena(t)

	require.NoError(t, a.Join("ann"))
	assert.False(t, a.Update(), "one player is not enough")

	require.NoError(t, a.Join("bob"))
	assert.True(t, a.Update())
	assert.Equal(t, "countdown", a.State().ID())

	c.now = c.now.Add(4 * time.Second)
	assert.False(t, a.Update())
	require.NoError(t, a.Join("cid"), "joining during the countdown is allowed")

	c.now = c.now.Add(time.Second)
	assert.True(t, a.Update())
	assert.Equal(t, "playing", a.State().ID())
	assert.Equal(t, map[state.PlayerID]int{"ann": 0, "bob": 0, "cid": 0}, g.Scores("c1"))

	err := a.Join("dan")
	assert.ErrorIs(t, err, arena.ErrJoinRefused)
	assert.ErrorIs(t, err, minigame.ErrJoinClosed)

	require.NoError(t, a.Handle("ann", []byte(`{"type":"score","points":3}`)))
	require.NoError(t, a.Handle("bob", []byte(`{"type":"score"}`)))
	assert.ErrorIs(t, a.Handle("bob", []byte(`{"type":"dance"}`)), ErrUnknownAction)
	assert.Error(t, a.Handle("bob", []byte(`{`)))

	c.now = c.now.Add(60 * time.Second)
	assert.True(t, a.Update())
	assert.Equal(t, "ending", a.State().ID())

	ranking := g.Ranking("c1")
	require.Len(t, ranking, 3)
	assert.Equal(t, Standing{Player: "ann", Score: 3}, ranking[0])
	assert.Equal(t, Standing{Player: "bob", Score: 1}, ranking[1])

	assert.False(t, a.Update(), "ending is final")
	assert.ErrorIs(t, a.Handle("ann", []byte(`{"type":"score"}`)), state.ErrActionNotSupported)

	a.Reset()
	assert.Equal(t, "waiting", a.State().ID())
	assert.Empty(t, g.Scores("c1"))
}

func TestClassic_RoundEndsWhenEveryoneLeaves(t *testing.T) {
	_, a, c := newClassicArena(t)
	a.Join("ann")
	a.Join("bob")
	a.Update()
	c.now = c.now.Add(5 * time.Second)
	a.Update()
	require.Equal(t, "playing", a.State().ID())

	a.Leave("ann")
	assert.False(t, a.Update())
	a.Leave("bob")
	assert.True(t, a.Update())
	assert.Equal(t, "ending", a.State().ID())
}

func TestClassic_Spin(t *testing.T) {
	g, a, c := newClassicArena(t)
	a.Join("ann")
	a.Join("bob")
	a.Update()
	c.now = c.now.Add(5 * time.Second)
	a.Update()

	reels := []int{7, 7, 7, 1, 2, 3}
	g.rand = func(int) int {
		r := reels[0]
		reels = reels[1:]
		return r
	}
	require.NoError(t, a.Handle("ann", []byte(`{"type":"spin"}`)))
	require.NoError(t, a.Handle("bob", []byte(`{"type":"spin"}`)))

	assert.Equal(t, 1000, g.Scores("c1")["ann"])
	assert.Equal(t, 0, g.Scores("c1")["bob"])
	assert.Equal(t, 100, slotPayout([3]int{2, 2, 2}))
}

func TestClassic_MaxPlayersFromSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classic.yaml"), []byte("players:\n  max: 2\n"), 0o644))

	store, err := Settings(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Int(SettingMinPlayers, 0), "unset keys come from the bundled defaults")
	assert.Equal(t, 10*time.Second, store.Duration("arena.recycle_after", 0))

	g, err := New(store)
	require.NoError(t, err)
	a := arena.New(g.Minigame())

	require.NoError(t, a.Join("ann"))
	require.NoError(t, a.Join("bob"))
	assert.True(t, errors.Is(a.Join("cid"), minigame.ErrArenaFull))
}

func TestClassic_CloseDropsScores(t *testing.T) {
	g, a, c := newClassicArena(t)
	a.Join("ann")
	a.Join("bob")
	a.Update()
	c.now = c.now.Add(5 * time.Second)
	a.Update()
	a.Handle("ann", []byte(`{"type":"score"}`))
	require.NotEmpty(t, g.Scores("c1"))

	a.Close()
	assert.Empty(t, g.Scores("c1"))
}
