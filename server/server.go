package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/network"
	"github.com/wfunc/minigame/session"
	"github.com/wfunc/minigame/state"
)

// Metrics is what the server reports. *monitor.Monitor implements it.
type Metrics interface {
	IncOnlinePlayers()
	DecOnlinePlayers()
	IncMessagesReceived()
	ObserveMessageLatency(duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) IncOnlinePlayers()                   {}
func (nopMetrics) DecOnlinePlayers()                   {}
func (nopMetrics) IncMessagesReceived()                {}
func (nopMetrics) ObserveMessageLatency(time.Duration) {}

type Options struct {
	Addr          string
	Heartbeat     time.Duration
	RatePerSecond float64
	RateBurst     int
}

type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	catalog        *minigame.Catalog
	arenaManager   *arena.Manager
	sessionManager *session.Manager
	metrics        Metrics
}

func NewGameServer(opts Options, catalog *minigame.Catalog, arenaManager *arena.Manager, sessionManager *session.Manager, metrics Metrics) *GameServer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &GameServer{
		opts:           opts,
		catalog:        catalog,
		arenaManager:   arenaManager,
		sessionManager: sessionManager,
		metrics:        metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
}

// Start serves websocket connections on /ws until ctx is done.
func (s *GameServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	srv := &http.Server{Addr: s.opts.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		s.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Infof("Game server listening on %s", s.opts.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes every connection. Their read loops then release the
// players.
func (s *GameServer) Shutdown() {
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn))
}

func (s *GameServer) handleConnection(conn network.Connection) {
	sess := session.NewSession(uuid.New().String(), conn,
		session.NewLimiter(s.opts.RatePerSecond, s.opts.RateBurst))
	s.sessionManager.Add(sess)
	s.metrics.IncOnlinePlayers()
	if s.opts.Heartbeat > 0 {
		conn.SetHeartbeat(s.opts.Heartbeat)
	}

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		if _, err := s.arenaManager.Leave(sess.PlayerID); err == nil {
			sess.SetArenaID("")
		}
		s.sessionManager.Remove(sess.GetID())
		s.metrics.DecOnlinePlayers()
		conn.Close()
	}()

	for {
		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.metrics.IncMessagesReceived()
	defer func() {
		s.metrics.ObserveMessageLatency(time.Since(start))
	}()

	if !sess.Allow() {
		sess.SendError(packet.MsgID, network.CodeRateLimited, "rate limit exceeded")
		return
	}
	sess.Touch()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.SendJSON(network.MsgTypeHeartbeat, network.HeartbeatPayload{Time: time.Now().UnixMilli()})
	case network.MsgTypeListArenas:
		s.handleListArenas(sess, packet)
	case network.MsgTypeCreateArena:
		s.handleCreateArena(sess, packet)
	case network.MsgTypeJoinArena:
		s.handleJoinArena(sess, packet)
	case network.MsgTypeLeaveArena:
		s.handleLeaveArena(sess, packet)
	case network.MsgTypeAction:
		s.handleAction(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		sess.SendError(packet.MsgID, network.CodeUnknownMessage, "unknown message type")
	}
}

// decode unmarshals the packet payload. An empty payload leaves v untouched.
func decode(sess *session.Session, packet *network.Packet, v interface{}) bool {
	if len(packet.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(packet.Data, v); err != nil {
		sess.SendError(packet.MsgID, network.CodeBadRequest, "invalid payload: "+err.Error())
		return false
	}
	return true
}

func (s *GameServer) handleListArenas(sess *session.Session, packet *network.Packet) {
	var req network.ListArenasRequest
	if !decode(sess, packet, &req) {
		return
	}

	arenas := s.arenaManager.List()
	if req.Minigame != "" {
		arenas = s.arenaManager.ListByMinigame(req.Minigame)
	}
	resp := network.ListArenasResponse{Arenas: make([]arena.Snapshot, 0, len(arenas))}
	for _, a := range arenas {
		resp.Arenas = append(resp.Arenas, a.Snapshot())
	}
	sess.SendJSON(network.MsgTypeListArenas, resp)
}

func (s *GameServer) handleCreateArena(sess *session.Session, packet *network.Packet) {
	var req network.CreateArenaRequest
	if !decode(sess, packet, &req) {
		return
	}

	mg, ok := s.catalog.Get(req.Minigame)
	if !ok {
		s.sendError(sess, packet.MsgID, minigame.ErrUnknownMinigame)
		return
	}
	a, err := s.arenaManager.Create(mg)
	if err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}

	logger.Log.Infof("Session %s created arena %s", sess.GetID(), a.ID())
	sess.SendJSON(network.MsgTypeCreateArena, network.CreateArenaResponse{ArenaID: a.ID()})
}

func (s *GameServer) handleJoinArena(sess *session.Session, packet *network.Packet) {
	var req network.JoinArenaRequest
	if !decode(sess, packet, &req) {
		return
	}

	var a *arena.Arena
	var err error
	switch {
	case req.ArenaID != "":
		err = s.arenaManager.Join(req.ArenaID, sess.PlayerID)
		if err == nil {
			a, _ = s.arenaManager.Get(req.ArenaID)
		}
	case req.Minigame != "":
		a, err = s.joinAny(req.Minigame, sess.PlayerID)
	default:
		sess.SendError(packet.MsgID, network.CodeBadRequest, "arena_id or minigame required")
		return
	}
	if err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}
	if a == nil {
		s.sendError(sess, packet.MsgID, arena.ErrArenaNotFound)
		return
	}

	sess.SetArenaID(a.ID())
	logger.Log.Infof("Session %s joined arena %s", sess.GetID(), a.ID())
	sess.SendJSON(network.MsgTypeArenaState, a.Snapshot())
}

// joinAny joins an open arena of the minigame, creating one when none
// accepts the player.
func (s *GameServer) joinAny(name string, player state.PlayerID) (*arena.Arena, error) {
	mg, ok := s.catalog.Get(name)
	if !ok {
		return nil, minigame.ErrUnknownMinigame
	}

	if a := s.arenaManager.FindAvailable(name, player); a != nil {
		err := s.arenaManager.Join(a.ID(), player)
		if err == nil {
			return a, nil
		}
		// Someone else filled or closed it in the meantime.
		if !errors.Is(err, arena.ErrJoinRefused) && !errors.Is(err, arena.ErrArenaClosed) && !errors.Is(err, arena.ErrArenaNotFound) {
			return nil, err
		}
	}

	a, err := s.arenaManager.Create(mg)
	if err != nil {
		return nil, err
	}
	if err := s.arenaManager.Join(a.ID(), player); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *GameServer) handleLeaveArena(sess *session.Session, packet *network.Packet) {
	arenaID, err := s.arenaManager.Leave(sess.PlayerID)
	if err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}
	sess.SetArenaID("")
	logger.Log.Infof("Session %s left arena %s", sess.GetID(), arenaID)
	sess.SendJSON(network.MsgTypeLeaveArena, network.LeaveArenaResponse{ArenaID: arenaID})
}

func (s *GameServer) handleAction(sess *session.Session, packet *network.Packet) {
	a, ok := s.arenaManager.ArenaOf(sess.PlayerID)
	if !ok {
		logger.Log.Warnf("Session %s sent game action but is not in an arena", sess.GetID())
		s.sendError(sess, packet.MsgID, arena.ErrPlayerNotInArena)
		return
	}

	if err := a.Handle(sess.PlayerID, packet.Data); err != nil {
		logger.Log.Infof("Action of session %s in arena %s rejected: %v", sess.GetID(), a.ID(), err)
		s.sendError(sess, packet.MsgID, err)
	}
}

func (s *GameServer) sendError(sess *session.Session, msgID uint16, err error) {
	sess.SendError(msgID, errorCode(err), err.Error())
}

// errorCode maps domain errors to protocol error codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, arena.ErrArenaNotFound),
		errors.Is(err, arena.ErrPlayerNotInArena),
		errors.Is(err, minigame.ErrUnknownMinigame):
		return network.CodeNotFound
	case errors.Is(err, arena.ErrJoinRefused),
		errors.Is(err, arena.ErrNotMember):
		return network.CodeRefused
	case errors.Is(err, arena.ErrAlreadyInArena),
		errors.Is(err, arena.ErrArenaClosed),
		errors.Is(err, arena.ErrDuplicateArena):
		return network.CodeConflict
	default:
		// Rejected actions and malformed requests.
		return network.CodeBadRequest
	}
}
