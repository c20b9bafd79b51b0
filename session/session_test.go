package session

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/minigame/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mutex sync.Mutex
	sent  []network.Packet
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{}, nil)

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByPlayerID(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{}, nil)
	sess2 := NewSession("session2", &MockConnection{}, nil)
	manager.Add(sess1)
	manager.Add(sess2)

	if got := manager.GetByPlayerID("session1"); len(got) != 1 || got[0] != sess1 {
		t.Errorf("Expected session1, got %v", got)
	}
	if got := manager.GetByPlayerID("nobody"); len(got) != 0 {
		t.Errorf("Expected no sessions, got %d", len(got))
	}

	all := manager.All()
	if len(all) != 2 || all[0] != sess1 || all[1] != sess2 {
		t.Errorf("All should return sessions sorted by id")
	}
}

func TestSession_ArenaID(t *testing.T) {
	sess := NewSession("s", &MockConnection{}, nil)
	if sess.ArenaID() != "" {
		t.Fatal("A new session is in no arena")
	}
	sess.SetArenaID("arena-1")
	if sess.ArenaID() != "arena-1" {
		t.Errorf("Expected arena-1, got %q", sess.ArenaID())
	}
	if sess.PlayerID != "s" {
		t.Errorf("Player id should be the session id, got %q", sess.PlayerID)
	}
}

func TestSession_RateLimit(t *testing.T) {
	sess := NewSession("s", &MockConnection{}, NewLimiter(1, 3))

	allowed := 0
	for i := 0; i < 10; i++ {
		if sess.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("Expected the burst of 3 to pass, got %d", allowed)
	}

	unlimited := NewSession("u", &MockConnection{}, NewLimiter(0, 0))
	for i := 0; i < 100; i++ {
		if !unlimited.Allow() {
			t.Fatal("A session without limiter should allow everything")
		}
	}
}

func TestSession_SendError(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s", conn, nil)

	if err := sess.SendError(network.MsgTypeJoinArena, network.CodeNotFound, "arena not found"); err != nil {
		t.Fatalf("SendError failed: %v", err)
	}
	if len(conn.sent) != 1 || conn.sent[0].MsgID != network.MsgTypeError {
		t.Fatalf("Expected one error frame, got %v", conn.sent)
	}

	var payload network.ErrorPayload
	if err := json.Unmarshal(conn.sent[0].Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != network.CodeNotFound || payload.MsgID != network.MsgTypeJoinArena {
		t.Errorf("Unexpected payload %+v", payload)
	}
}

func TestManager_PlayerIndex(t *testing.T) {
	manager := NewManager()

	phone := NewSession("phone", &MockConnection{}, nil)
	phone.PlayerID = "ann"
	laptop := NewSession("laptop", &MockConnection{}, nil)
	laptop.PlayerID = "ann"
	manager.Add(phone)
	manager.Add(laptop)

	got := manager.GetByPlayerID("ann")
	if len(got) != 2 || got[0] != laptop || got[1] != phone {
		t.Fatalf("Expected both sessions of ann sorted by id, got %v", got)
	}

	manager.Remove("laptop")
	if got := manager.GetByPlayerID("ann"); len(got) != 1 || got[0] != phone {
		t.Fatalf("Expected only the phone session, got %v", got)
	}

	manager.Remove("phone")
	if got := manager.GetByPlayerID("ann"); len(got) != 0 {
		t.Errorf("Expected no sessions after removing both, got %d", len(got))
	}
	if len(manager.byPlayer) != 0 {
		t.Errorf("Player index should be empty, has %d entries", len(manager.byPlayer))
	}
}
