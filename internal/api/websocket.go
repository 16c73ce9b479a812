package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Loopback-only server; origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsManager pushes a telemetry snapshot to every connected client once a
// second.
type wsManager struct {
	server    *Server
	clients   map[*wsClient]bool
	clientsMu sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSManager(s *Server) *wsManager {
	return &wsManager{
		server:  s,
		clients: make(map[*wsClient]bool),
	}
}

func (m *wsManager) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.clientsMu.Lock()
		if len(m.clients) == 0 {
			m.clientsMu.Unlock()
			continue
		}
		payload, err := json.Marshal(m.server.ctrl.Stats())
		if err != nil {
			m.clientsMu.Unlock()
			continue
		}
		for c := range m.clients {
			select {
			case c.send <- payload:
			default:
				// Slow consumer; drop it rather than buffer forever.
				delete(m.clients, c)
				close(c.send)
			}
		}
		m.clientsMu.Unlock()
	}
}

func (m *wsManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 8)}
	m.clientsMu.Lock()
	m.clients[client] = true
	m.clientsMu.Unlock()

	go client.writeLoop()
	go client.readLoop(m)
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readLoop drains control frames so pings are answered; any read error
// unregisters the client.
func (c *wsClient) readLoop(m *wsManager) {
	defer func() {
		m.clientsMu.Lock()
		if m.clients[c] {
			delete(m.clients, c)
			close(c.send)
		}
		m.clientsMu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
