package network

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Connection is one client link as seen by the game server.
type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

// WSConnection carries packets as binary websocket messages. Send may be
// called from several goroutines; ReadPacket only from one.
type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(msgID uint16, data []byte) error {
	frame, err := EncodePacket(msgID, data)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// ReadPacket blocks for the next packet. With a heartbeat set, a peer that
// stays silent for two intervals times out.
func (c *WSConnection) ReadPacket() (*Packet, error) {
	if c.heartbeat > 0 {
		c.conn.SetReadDeadline(time.Now().Add(2 * c.heartbeat))
	}
	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return DecodePacket(frame)
}

// SetHeartbeat 设置心跳间隔, 必须在 ReadPacket 之前调用
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
