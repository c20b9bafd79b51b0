// Package session tracks connected players.
package session

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wfunc/minigame/network"
	"github.com/wfunc/minigame/state"
)

// Session is one connected player.
type Session struct {
	ID        string
	PlayerID  state.PlayerID
	Conn      network.Connection
	CreatedAt time.Time

	limiter    *rate.Limiter
	mutex      sync.RWMutex
	arenaID    string
	lastActive time.Time
}

// NewSession creates a session whose player id is the session id. A nil
// limiter lets every packet through.
func NewSession(id string, conn network.Connection, limiter *rate.Limiter) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		PlayerID:   state.PlayerID(id),
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		limiter:    limiter,
	}
}

// NewLimiter allows perSecond packets with bursts of burst.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Allow reports whether the next packet is within the rate limit.
func (s *Session) Allow() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// ArenaID returns the arena the player is in, or "".
func (s *Session) ArenaID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.arenaID
}

func (s *Session) SetArenaID(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.arenaID = id
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

// SendJSON encodes v and sends it.
func (s *Session) SendJSON(msgID uint16, v interface{}) error {
	data, err := network.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(msgID, data)
}

// SendError sends an error frame answering the message msgID.
func (s *Session) SendError(msgID uint16, code int, message string) error {
	return s.SendJSON(network.MsgTypeError, network.ErrorPayload{
		Code:    code,
		Message: message,
		MsgID:   msgID,
	})
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器, 按会话和玩家两个维度索引
type Manager struct {
	mutex    sync.RWMutex
	sessions map[string]*Session
	byPlayer map[state.PlayerID]map[string]*Session
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byPlayer: make(map[state.PlayerID]map[string]*Session),
	}
}

// Add registers session, replacing a session with the same id.
func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if old, ok := m.sessions[session.ID]; ok {
		m.unindex(old)
	}
	m.sessions[session.ID] = session

	owned, ok := m.byPlayer[session.PlayerID]
	if !ok {
		owned = make(map[string]*Session)
		m.byPlayer[session.PlayerID] = owned
	}
	owned[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if session, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		m.unindex(session)
	}
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// GetByPlayerID returns the sessions of player sorted by id.
func (m *Manager) GetByPlayerID(player state.PlayerID) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return sortedSessions(m.byPlayer[player])
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns every session sorted by id.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return sortedSessions(m.sessions)
}

func (m *Manager) unindex(session *Session) {
	owned := m.byPlayer[session.PlayerID]
	delete(owned, session.ID)
	if len(owned) == 0 {
		delete(m.byPlayer, session.PlayerID)
	}
}

func sortedSessions(sessions map[string]*Session) []*Session {
	result := make([]*Session, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, session)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
