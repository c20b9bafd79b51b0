package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/models"
)

// MinigameLookup finds a minigame by name. *minigame.Catalog implements it.
type MinigameLookup interface {
	Get(name string) (*minigame.Minigame, bool)
}

// Recorder is an arena observer that writes snapshots and finished games to
// a Store. Events are queued and written by Run so arenas never wait on the
// database.
type Recorder struct {
	store     Store
	minigames MinigameLookup
	queue     chan arena.Event

	mutex   sync.Mutex
	lastSeq map[string]uint64
	started map[string]time.Time
	dropped uint64
}

// NewRecorder creates a recorder with room for size queued events.
func NewRecorder(store Store, minigames MinigameLookup, size int) *Recorder {
	if size <= 0 {
		size = 1024
	}
	return &Recorder{
		store:     store,
		minigames: minigames,
		queue:     make(chan arena.Event, size),
		lastSeq:   make(map[string]uint64),
		started:   make(map[string]time.Time),
	}
}

// OnArenaEvent queues e. When the queue is full the event is dropped.
func (r *Recorder) OnArenaEvent(e arena.Event) {
	if e.Kind == arena.EventJoinRefused {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.mutex.Lock()
		r.dropped++
		r.mutex.Unlock()
		logger.Log.Warnf("recorder queue full, dropped %s event of arena %s", e.Kind, e.ArenaID)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dropped
}

// Run writes queued events until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.handle(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.handle(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) handle(e arena.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if e.Kind == arena.EventClosed {
		r.forget(e.ArenaID)
		if err := r.store.DeleteSnapshot(ctx, e.ArenaID); err != nil {
			logger.Log.Errorf("delete snapshot of arena %s: %v", e.ArenaID, err)
		}
		return
	}

	if r.fresh(e) {
		if err := r.store.SaveSnapshot(ctx, SnapshotModel(e.Snapshot)); err != nil {
			logger.Log.Errorf("save snapshot of arena %s: %v", e.ArenaID, err)
		}
	}

	switch e.Kind {
	case arena.EventReset:
		r.mutex.Lock()
		delete(r.started, e.ArenaID)
		r.mutex.Unlock()
	case arena.EventStateChanged:
		if record := r.finished(e); record != nil {
			if err := r.store.SaveRecord(ctx, record); err != nil {
				logger.Log.Errorf("save game record of arena %s: %v", e.ArenaID, err)
				return
			}
			logger.Log.Infof("game %d of arena %s recorded, %d players", record.ID, e.ArenaID, len(record.Players))
		}
	}
}

// fresh reports whether e is newer than anything seen for its arena.
func (r *Recorder) fresh(e arena.Event) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if e.Seq <= r.lastSeq[e.ArenaID] {
		return false
	}
	r.lastSeq[e.ArenaID] = e.Seq
	return true
}

func (r *Recorder) forget(arenaID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.lastSeq, arenaID)
	delete(r.started, arenaID)
}

// finished tracks when a game leaves the initial state and returns the
// record once it reaches the final state.
func (r *Recorder) finished(e arena.Event) *models.GameRecord {
	mg, ok := r.minigames.Get(e.Minigame)
	if !ok || e.To == nil {
		return nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if e.From == mg.InitialState() {
		r.started[e.ArenaID] = e.At
	}
	if e.To != mg.FinalState() {
		return nil
	}
	started, ok := r.started[e.ArenaID]
	if !ok {
		started = e.At
	}
	delete(r.started, e.ArenaID)

	return &models.GameRecord{
		ArenaID:    e.ArenaID,
		Minigame:   e.Minigame,
		Players:    playerStrings(e.Snapshot),
		StartedAt:  started,
		FinishedAt: e.At,
	}
}

// SnapshotModel converts an arena snapshot to its persisted form.
func SnapshotModel(s arena.Snapshot) models.ArenaSnapshot {
	return models.ArenaSnapshot{
		ArenaID:   s.ArenaID,
		Minigame:  s.Minigame,
		StateKey:  s.StateKey,
		StateID:   s.StateID,
		HasState:  s.HasState,
		Players:   playerStrings(s),
		Closed:    s.Closed,
		Seq:       s.Seq,
		UpdatedAt: s.At,
	}
}

func playerStrings(s arena.Snapshot) []string {
	players := make([]string, len(s.Players))
	for i, p := range s.Players {
		players[i] = string(p)
	}
	return players
}
