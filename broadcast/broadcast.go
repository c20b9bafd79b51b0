// broadcast/broadcast.go
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/network"
	"github.com/wfunc/minigame/session"
	"github.com/wfunc/minigame/state"
)

var (
	ErrQueueFull = errors.New("broadcast queue full")
)

// 广播接口
type Broadcaster interface {
	BroadcastToPlayers(players []state.PlayerID, msgID uint16, data []byte) error
	BroadcastToAll(msgID uint16, data []byte) error
}

// ArenaBroadcaster 把竞技场状态推送给竞技场内的玩家.
// 作为 arena.Observer 使用时事件先入队, 由 Run 发送.
type ArenaBroadcaster struct {
	sessionManager *session.Manager
	queue          chan arena.Event

	mutex   sync.Mutex
	lastSeq map[string]uint64
}

func NewArenaBroadcaster(sessionManager *session.Manager, size int) *ArenaBroadcaster {
	if size <= 0 {
		size = 1024
	}
	return &ArenaBroadcaster{
		sessionManager: sessionManager,
		queue:          make(chan arena.Event, size),
		lastSeq:        make(map[string]uint64),
	}
}

func (b *ArenaBroadcaster) BroadcastToPlayers(players []state.PlayerID, msgID uint16, data []byte) error {
	var errs []error
	for _, p := range players {
		for _, s := range b.sessionManager.GetByPlayerID(p) {
			if err := s.Send(msgID, data); err != nil {
				// 发送失败由连接的读循环负责清理
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *ArenaBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	var errs []error
	for _, s := range b.sessionManager.All() {
		if err := s.Send(msgID, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnArenaEvent queues e for Run. It never blocks.
func (b *ArenaBroadcaster) OnArenaEvent(e arena.Event) {
	if e.Kind == arena.EventJoinRefused {
		return
	}
	select {
	case b.queue <- e:
	default:
		logger.Log.Warnf("%v, dropped %s event of arena %s", ErrQueueFull, e.Kind, e.ArenaID)
	}
}

// Run sends queued events until ctx is done.
func (b *ArenaBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.push(e)
		}
	}
}

// push sends the arena snapshot of e to its members and, for a leave, to the
// player who left. Snapshots older than one already sent only reach the
// leaver, who would otherwise never learn that they left.
func (b *ArenaBroadcaster) push(e arena.Event) {
	fresh := b.fresh(e)
	if !fresh && e.Kind != arena.EventLeft {
		return
	}

	data, err := network.Marshal(e.Snapshot)
	if err != nil {
		logger.Log.Errorf("encode snapshot of arena %s: %v", e.ArenaID, err)
		return
	}

	var players []state.PlayerID
	if fresh {
		players = append(players, e.Snapshot.Players...)
	}
	if e.Kind == arena.EventLeft {
		players = append(players, e.Player)
	}
	if err := b.BroadcastToPlayers(players, network.MsgTypeArenaState, data); err != nil {
		logger.Log.Warnf("push state of arena %s: %v", e.ArenaID, err)
	}
}

func (b *ArenaBroadcaster) fresh(e arena.Event) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if e.Kind == arena.EventClosed {
		delete(b.lastSeq, e.ArenaID)
		return true
	}
	if e.Seq <= b.lastSeq[e.ArenaID] {
		return false
	}
	b.lastSeq[e.ArenaID] = e.Seq
	return true
}
