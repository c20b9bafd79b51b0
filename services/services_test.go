package services

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/models"
	"github.com/wfunc/minigame/persistence"
	"github.com/wfunc/minigame/settings"
	"github.com/wfunc/minigame/state"
	"github.com/wfunc/minigame/timer"
)

// autoState finishes on its first update.
type autoState struct {
	*state.Base
}

func (s autoState) OnUpdate(c state.Context) bool {
	return true
}

func newLifecycleMinigame(t *testing.T, auto bool) *minigame.Minigame {
	store, err := settings.New(t.TempDir()+"/lifecycle.yaml",
		settings.WithDefaults(fstest.MapFS{
			"defaults.yaml": {Data: []byte("arena:\n  recycle_after: 20ms\n")},
		}, "defaults.yaml"))
	require.NoError(t, err)
	require.NoError(t, store.Load())

	mg := minigame.New("cycle", minigame.WithSettings(store))
	for i, id := range []string{"waiting", "playing", "ending"} {
		var s state.State = state.NewBase(id)
		if auto && id != "ending" {
			s = autoState{state.NewBase(id)}
		}
		require.NoError(t, mg.AddState(i+1, s))
	}
	return mg
}

type kindLog struct {
	mutex sync.Mutex
	kinds []arena.EventKind
}

func (k *kindLog) OnArenaEvent(e arena.Event) {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	k.kinds = append(k.kinds, e.Kind)
}

func (k *kindLog) has(kind arena.EventKind) bool {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	for _, got := range k.kinds {
		if got == kind {
			return true
		}
	}
	return false
}

func TestLifecycle_TicksAndRecycles(t *testing.T) {
	catalog := minigame.NewCatalog()
	mg := newLifecycleMinigame(t, true)
	require.NoError(t, catalog.Register(mg))

	events := &kindLog{}
	manager := arena.NewManager(events)
	timers := timer.NewTimerManager(time.Millisecond)
	lifecycle := NewLifecycle(manager, catalog, timers, 5*time.Millisecond)
	manager.Observe(lifecycle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timers.Run(ctx)

	a, err := manager.Create(mg, arena.WithID("loop"))
	require.NoError(t, err)
	require.NoError(t, manager.Join("loop", "p1"))

	lifecycle.Start()
	defer lifecycle.Stop()

	require.Eventually(t, func() bool {
		return events.has(arena.EventReset)
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, 0, a.PlayerCount(), "recycling releases the players")
	_, inArena := manager.ArenaOf("p1")
	assert.False(t, inArena)
}

func TestLifecycle_CloseCancelsRecycle(t *testing.T) {
	catalog := minigame.NewCatalog()
	mg := newLifecycleMinigame(t, false)
	require.NoError(t, catalog.Register(mg))

	manager := arena.NewManager()
	lifecycle := NewLifecycle(manager, catalog, timer.NewTimerManager(time.Millisecond), time.Second)
	manager.Observe(lifecycle)

	a, _ := manager.Create(mg, arena.WithID("end"))
	a.Advance()
	assert.False(t, lifecycle.Pending("end"))
	a.Advance()
	assert.True(t, lifecycle.Pending("end"), "final state schedules a recycle")

	manager.Remove("end")
	assert.False(t, lifecycle.Pending("end"))
}

func TestLifecycle_ResetCancelsAndStopClears(t *testing.T) {
	catalog := minigame.NewCatalog()
	mg := newLifecycleMinigame(t, false)
	require.NoError(t, catalog.Register(mg))

	manager := arena.NewManager()
	timers := timer.NewTimerManager(time.Millisecond)
	lifecycle := NewLifecycle(manager, catalog, timers, time.Second)
	manager.Observe(lifecycle)

	a, _ := manager.Create(mg, arena.WithID("a"))
	b, _ := manager.Create(mg, arena.WithID("b"))
	for _, x := range []*arena.Arena{a, b} {
		x.Advance()
		x.Advance()
	}
	require.True(t, lifecycle.Pending("a"))

	a.Reset()
	assert.False(t, lifecycle.Pending("a"))
	assert.True(t, lifecycle.Pending("b"))

	lifecycle.Start()
	lifecycle.Stop()
	assert.False(t, lifecycle.Pending("b"))
	assert.Equal(t, 0, timers.Len())
}

func TestLifecycle_IgnoresOutOfOrderEvents(t *testing.T) {
	catalog := minigame.NewCatalog()
	mg := newLifecycleMinigame(t, false)
	require.NoError(t, catalog.Register(mg))
	lifecycle := NewLifecycle(arena.NewManager(), catalog, timer.NewTimerManager(time.Millisecond), time.Second)

	final := mg.FinalState()
	lifecycle.OnArenaEvent(arena.Event{Kind: arena.EventReset, Seq: 5, ArenaID: "a", Minigame: "cycle", To: mg.InitialState()})
	lifecycle.OnArenaEvent(arena.Event{Kind: arena.EventStateChanged, Seq: 4, ArenaID: "a", Minigame: "cycle", To: final})
	assert.False(t, lifecycle.Pending("a"), "a transition older than the reset must not schedule a recycle")

	lifecycle.OnArenaEvent(arena.Event{Kind: arena.EventStateChanged, Seq: 6, ArenaID: "a", Minigame: "cycle", To: final})
	assert.True(t, lifecycle.Pending("a"))

	lifecycle.OnArenaEvent(arena.Event{Kind: arena.EventClosed, Seq: 7, ArenaID: "a", Minigame: "cycle"})
	assert.False(t, lifecycle.Pending("a"))

	lifecycle.OnArenaEvent(arena.Event{Kind: arena.EventStateChanged, Seq: 1, ArenaID: "a", Minigame: "cycle", To: final})
	assert.True(t, lifecycle.Pending("a"), "closing forgets the sequence so a new arena with the same id starts over")
	lifecycle.Stop()
}

func TestRecycleAfter(t *testing.T) {
	assert.Equal(t, DefaultRecycleAfter, recycleAfter(minigame.New("bare")))
	assert.Equal(t, 20*time.Millisecond, recycleAfter(newLifecycleMinigame(t, false)))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, r := range []models.GameRecord{
		{Minigame: "classic", Players: []string{"ann", "bob"}, StartedAt: base, FinishedAt: base.Add(time.Minute)},
		{Minigame: "classic", Players: []string{"ann"}, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + 2*time.Minute)},
		{Minigame: "sprint", Players: []string{"ann"}, StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(2*time.Hour + 30*time.Second)},
		{Minigame: "sprint", Players: []string{"bob"}, StartedAt: base, FinishedAt: base.Add(time.Second)},
	} {
		r := r
		require.NoError(t, store.SaveRecord(ctx, &r))
	}

	history := NewHistory(store)

	stats, err := history.PlayerStats(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalGames)
	assert.Equal(t, map[string]int{"classic": 2, "sprint": 1}, stats.ByMinigame)
	assert.Equal(t, 3*time.Minute+30*time.Second, stats.PlayTime)
	assert.Equal(t, base.Add(2*time.Hour+30*time.Second), stats.LastPlayed)

	games, err := history.PlayerHistory(ctx, "ann", 2)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "sprint", games[0].Minigame)

	recent, err := history.Recent(ctx, "sprint", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	empty, err := history.PlayerStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalGames)
}
