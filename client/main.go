// Command client is a small terminal client for manual testing. It joins a
// classic arena and sends actions typed on stdin.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/minigame/games/classic"
	"github.com/wfunc/minigame/network"
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := network.Marshal(v)
	if err != nil {
		return err
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "game server address")
	game := flag.String("minigame", classic.Name, "minigame to join")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet: %v", err)
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
		}
	}()

	log.Printf("Joining a %s arena...", *game)
	if err := send(c, network.MsgTypeJoinArena, network.JoinArenaRequest{Minigame: *game}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: score [points], spin, list, leave, quit.")

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- strings.TrimSpace(reader.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			closeConnection(c, done)
			return
		case text, ok := <-lines:
			if !ok || text == "quit" {
				closeConnection(c, done)
				return
			}
			if err := command(c, text); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}

func command(c *websocket.Conn, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "score":
		action := classic.Action{Type: "score"}
		if len(fields) > 1 {
			if err := json.Unmarshal([]byte(fields[1]), &action.Points); err != nil {
				log.Printf("bad points %q", fields[1])
				return nil
			}
		}
		return send(c, network.MsgTypeAction, action)
	case "spin":
		return send(c, network.MsgTypeAction, classic.Action{Type: "spin"})
	case "list":
		return send(c, network.MsgTypeListArenas, network.ListArenasRequest{})
	case "leave":
		return send(c, network.MsgTypeLeaveArena, nil)
	default:
		log.Printf("unknown command %q", fields[0])
		return nil
	}
}

func closeConnection(c *websocket.Conn, done chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("Write close error:", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
