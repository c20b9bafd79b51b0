package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/models"
	"github.com/wfunc/minigame/state"
)

func TestMemory_Snapshots(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.LoadSnapshot(ctx, "a")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	players := []string{"p1", "p2"}
	require.NoError(t, store.SaveSnapshot(ctx, models.ArenaSnapshot{ArenaID: "a", StateID: "waiting", Players: players, Seq: 3}))
	players[0] = "changed"

	got, err := store.LoadSnapshot(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "waiting", got.StateID)
	assert.Equal(t, []string{"p1", "p2"}, got.Players)

	require.NoError(t, store.DeleteSnapshot(ctx, "a"))
	_, err = store.LoadSnapshot(ctx, "a")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemory_ListRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	records := []models.GameRecord{
		{ArenaID: "a", Minigame: "classic", Players: []string{"p1", "p2"}, FinishedAt: base},
		{ArenaID: "b", Minigame: "classic", Players: []string{"p2"}, FinishedAt: base.Add(time.Minute)},
		{ArenaID: "c", Minigame: "other", Players: []string{"p1"}, FinishedAt: base.Add(2 * time.Minute)},
	}
	for i := range records {
		require.NoError(t, store.SaveRecord(ctx, &records[i]))
	}
	assert.Equal(t, uint(1), records[0].ID)
	assert.Equal(t, uint(3), records[2].ID)

	all, err := store.ListRecords(ctx, models.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ArenaID, "newest first")

	classic, _ := store.ListRecords(ctx, models.RecordFilter{Minigame: "classic"})
	assert.Len(t, classic, 2)

	p1, _ := store.ListRecords(ctx, models.RecordFilter{Player: "p1"})
	require.Len(t, p1, 2)
	assert.Equal(t, "c", p1[0].ArenaID)
	assert.Equal(t, "a", p1[1].ArenaID)

	limited, _ := store.ListRecords(ctx, models.RecordFilter{Limit: 1})
	assert.Len(t, limited, 1)
}

type closeCounter struct {
	*Memory
	closed int
	err    error
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.err
}

func TestSplit_ClosesEachBackendOnce(t *testing.T) {
	shared := &closeCounter{Memory: NewMemory()}
	split := NewSplit(shared, shared)
	require.NoError(t, split.Close())
	assert.Equal(t, 1, shared.closed)

	broken := &closeCounter{Memory: NewMemory(), err: errors.New("boom")}
	records := &closeCounter{Memory: NewMemory()}
	split = NewSplit(broken, records)
	assert.EqualError(t, split.Close(), "boom")
	assert.Equal(t, 1, records.closed)
}

func TestRecordQuery(t *testing.T) {
	query, args := recordQuery(models.RecordFilter{})
	assert.Equal(t, "SELECT id, arena_id, minigame, players, started_at, finished_at FROM game_records ORDER BY finished_at DESC, id DESC", query)
	assert.Empty(t, args)

	query, args = recordQuery(models.RecordFilter{Minigame: "classic", Player: "p1", Limit: 5})
	assert.Contains(t, query, "WHERE minigame = $1 AND $2 = ANY(players)")
	assert.Contains(t, query, "LIMIT $3")
	assert.Equal(t, []interface{}{"classic", "p1", 5}, args)
}

func TestPostgresDSN(t *testing.T) {
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=games sslmode=disable",
		postgresDSN("db", 5432, "u", "p", "games"))
}

func newRecordedMinigame(t *testing.T) *minigame.Minigame {
	mg := minigame.New("recorded")
	require.NoError(t, mg.AddState(1, state.NewBase("waiting")))
	require.NoError(t, mg.AddState(2, state.NewBase("playing")))
	require.NoError(t, mg.AddState(3, state.NewBase("ending")))
	return mg
}

// drain processes every queued event synchronously.
func drain(r *Recorder) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
}

func TestRecorder_RecordsFinishedGame(t *testing.T) {
	catalog := minigame.NewCatalog()
	mg := newRecordedMinigame(t)
	require.NoError(t, catalog.Register(mg))

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := NewMemory()
	recorder := NewRecorder(store, catalog, 16)
	a := arena.New(mg, arena.WithID("rec"), arena.WithClock(clock), arena.WithObserver(recorder))

	require.NoError(t, a.Join("p2"))
	require.NoError(t, a.Join("p1"))
	a.Advance()
	now = now.Add(30 * time.Second)
	a.Advance()
	drain(recorder)

	records, err := store.ListRecords(context.Background(), models.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec", records[0].ArenaID)
	assert.Equal(t, []string{"p1", "p2"}, records[0].Players)
	assert.Equal(t, 30*time.Second, records[0].Duration())

	snapshot, err := store.LoadSnapshot(context.Background(), "rec")
	require.NoError(t, err)
	assert.Equal(t, "ending", snapshot.StateID)
	assert.Equal(t, uint64(4), snapshot.Seq)

	a.Close()
	drain(recorder)
	_, err = store.LoadSnapshot(context.Background(), "rec")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRecorder_ResetDiscardsGame(t *testing.T) {
	catalog := minigame.NewCatalog()
	mg := newRecordedMinigame(t)
	require.NoError(t, catalog.Register(mg))

	store := NewMemory()
	recorder := NewRecorder(store, catalog, 16)
	a := arena.New(mg, arena.WithObserver(recorder))

	a.Advance()
	a.Reset()
	drain(recorder)

	records, _ := store.ListRecords(context.Background(), models.RecordFilter{})
	assert.Empty(t, records)
}

func TestRecorder_SkipsStaleSnapshots(t *testing.T) {
	store := NewMemory()
	recorder := NewRecorder(store, minigame.NewCatalog(), 16)

	recorder.OnArenaEvent(arena.Event{Kind: arena.EventJoined, Seq: 2, ArenaID: "x",
		Snapshot: arena.Snapshot{ArenaID: "x", Seq: 2, Players: []state.PlayerID{"a", "b"}}})
	recorder.OnArenaEvent(arena.Event{Kind: arena.EventJoined, Seq: 1, ArenaID: "x",
		Snapshot: arena.Snapshot{ArenaID: "x", Seq: 1, Players: []state.PlayerID{"a"}}})
	drain(recorder)

	snapshot, err := store.LoadSnapshot(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snapshot.Seq)
	assert.Equal(t, []string{"a", "b"}, snapshot.Players)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	recorder := NewRecorder(NewMemory(), minigame.NewCatalog(), 1)

	recorder.OnArenaEvent(arena.Event{Kind: arena.EventJoined, Seq: 1, ArenaID: "x"})
	recorder.OnArenaEvent(arena.Event{Kind: arena.EventJoined, Seq: 2, ArenaID: "x"})
	recorder.OnArenaEvent(arena.Event{Kind: arena.EventJoinRefused, Seq: 3, ArenaID: "x"})

	assert.Equal(t, uint64(1), recorder.Dropped())
}
