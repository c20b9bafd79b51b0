// services/lifecycle.go
package services

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/timer"
)

// DefaultRecycleAfter is used when a minigame has no arena.recycle_after
// setting.
const DefaultRecycleAfter = 10 * time.Second

// Lifecycle drives the arenas of a manager: it ticks every arena and starts
// a new game some time after an arena reached its final state.
type Lifecycle struct {
	manager   *arena.Manager
	minigames *minigame.Catalog
	timers    *timer.TimerManager
	tick      time.Duration

	mutex    sync.Mutex
	tickID   int64
	recycles map[string]int64
	lastSeq  map[string]uint64
}

func NewLifecycle(manager *arena.Manager, minigames *minigame.Catalog, timers *timer.TimerManager, tick time.Duration) *Lifecycle {
	if tick <= 0 {
		tick = time.Second
	}
	return &Lifecycle{
		manager:   manager,
		minigames: minigames,
		timers:    timers,
		tick:      tick,
		recycles:  make(map[string]int64),
		lastSeq:   make(map[string]uint64),
	}
}

// Start schedules the periodic update of every arena.
func (l *Lifecycle) Start() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.tickID != 0 {
		return
	}
	l.tickID = l.timers.AddTimer(l.tick, l.tick, l.manager.UpdateAll)
	logger.Log.Infof("lifecycle started, tick %s", l.tick)
}

// Stop cancels the tick and every pending recycle.
func (l *Lifecycle) Stop() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.tickID != 0 {
		l.timers.RemoveTimer(l.tickID)
		l.tickID = 0
	}
	for id, timerID := range l.recycles {
		l.timers.RemoveTimer(timerID)
		delete(l.recycles, id)
	}
}

// Pending reports whether a recycle is scheduled for the arena.
func (l *Lifecycle) Pending(arenaID string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	_, ok := l.recycles[arenaID]
	return ok
}

// OnArenaEvent schedules a recycle when an arena reaches its final state and
// cancels it when the arena is reset or closed first. Events older than one
// already seen for the arena are ignored.
func (l *Lifecycle) OnArenaEvent(e arena.Event) {
	if e.Kind == arena.EventClosed {
		l.mutex.Lock()
		delete(l.lastSeq, e.ArenaID)
		l.mutex.Unlock()
		l.cancel(e.ArenaID)
		return
	}
	if !l.fresh(e) {
		return
	}

	switch e.Kind {
	case arena.EventStateChanged:
		mg, ok := l.minigames.Get(e.Minigame)
		if !ok || e.To == nil || e.To != mg.FinalState() {
			return
		}
		l.schedule(e.ArenaID, recycleAfter(mg))
	case arena.EventReset:
		l.cancel(e.ArenaID)
	}
}

func (l *Lifecycle) fresh(e arena.Event) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if e.Seq <= l.lastSeq[e.ArenaID] {
		return false
	}
	l.lastSeq[e.ArenaID] = e.Seq
	return true
}

func (l *Lifecycle) schedule(arenaID string, delay time.Duration) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if old, ok := l.recycles[arenaID]; ok {
		l.timers.RemoveTimer(old)
	}
	l.recycles[arenaID] = l.timers.AddTimer(delay, 0, func() {
		l.recycle(arenaID)
	})
}

func (l *Lifecycle) cancel(arenaID string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if timerID, ok := l.recycles[arenaID]; ok {
		l.timers.RemoveTimer(timerID)
		delete(l.recycles, arenaID)
	}
}

func (l *Lifecycle) recycle(arenaID string) {
	l.mutex.Lock()
	delete(l.recycles, arenaID)
	l.mutex.Unlock()

	if err := l.manager.Restart(arenaID); err != nil {
		if !errors.Is(err, arena.ErrArenaNotFound) {
			logger.Log.Errorf("recycle arena %s: %v", arenaID, err)
		}
	}
}

func recycleAfter(mg *minigame.Minigame) time.Duration {
	if s := mg.Settings(); s != nil {
		return s.Duration("arena.recycle_after", DefaultRecycleAfter)
	}
	return DefaultRecycleAfter
}
