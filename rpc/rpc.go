package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/logger"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and serves admin under the name "Admin".
func NewServer(addr string, admin *Admin) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Admin", admin); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rpcServer,
	}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests. It returns once Stop is called.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// Admin exposes privileged arena operations. Methods follow the net/rpc
// signature: exported arguments, pointer reply, error result.
type Admin struct {
	arenas *arena.Manager
}

func NewAdmin(arenas *arena.Manager) *Admin {
	return &Admin{arenas: arenas}
}

type ListArenasArgs struct {
	Minigame string
}

type ListArenasReply struct {
	Arenas []arena.Snapshot
}

type ArenaArgs struct {
	ArenaID string
}

type ArenaReply struct {
	Snapshot arena.Snapshot
}

func (a *Admin) ListArenas(args *ListArenasArgs, reply *ListArenasReply) error {
	list := a.arenas.List()
	if args.Minigame != "" {
		list = a.arenas.ListByMinigame(args.Minigame)
	}
	reply.Arenas = make([]arena.Snapshot, 0, len(list))
	for _, x := range list {
		reply.Arenas = append(reply.Arenas, x.Snapshot())
	}
	return nil
}

// Advance forces the arena into its next state.
func (a *Admin) Advance(args *ArenaArgs, reply *ArenaReply) error {
	x, ok := a.arenas.Get(args.ArenaID)
	if !ok {
		return arena.ErrArenaNotFound
	}
	if _, err := x.Advance(); err != nil {
		return err
	}
	logger.Log.Infof("admin advanced arena %s", args.ArenaID)
	reply.Snapshot = x.Snapshot()
	return nil
}

// Reset puts the arena back into its initial state, keeping its players.
func (a *Admin) Reset(args *ArenaArgs, reply *ArenaReply) error {
	x, ok := a.arenas.Get(args.ArenaID)
	if !ok {
		return arena.ErrArenaNotFound
	}
	x.Reset()
	logger.Log.Infof("admin reset arena %s", args.ArenaID)
	reply.Snapshot = x.Snapshot()
	return nil
}

// Restart empties the arena and resets it.
func (a *Admin) Restart(args *ArenaArgs, reply *ArenaReply) error {
	if err := a.arenas.Restart(args.ArenaID); err != nil {
		return err
	}
	x, ok := a.arenas.Get(args.ArenaID)
	if ok {
		reply.Snapshot = x.Snapshot()
	}
	return nil
}

// Close closes the arena and removes it from the manager.
func (a *Admin) Close(args *ArenaArgs, reply *ArenaReply) error {
	x, ok := a.arenas.Get(args.ArenaID)
	if !ok || !a.arenas.Remove(args.ArenaID) {
		return arena.ErrArenaNotFound
	}
	logger.Log.Infof("admin closed arena %s", args.ArenaID)
	reply.Snapshot = x.Snapshot()
	return nil
}
