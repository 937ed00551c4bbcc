package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 45 * time.Second

	sendBuffer = 256
)

// Browser origin checks are left to whatever sits in front of the service.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type roomMessage struct {
	sessionID string
	payload   []byte
}

type client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// hub fans analysis updates out to the WebSocket subscribers of each session.
type hub struct {
	log *logrus.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan roomMessage
	done       chan struct{}

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

func newHub(log *logrus.Logger) *hub {
	return &hub{
		log:        log,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan roomMessage, sendBuffer),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*client]struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			room := h.rooms[c.sessionID]
			if room == nil {
				room = make(map[*client]struct{})
				h.rooms[c.sessionID] = room
			}
			room[c] = struct{}{}
			n := len(room)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"session_id": c.sessionID, "subscribers": n}).Debug("live subscriber joined")

		case c := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[msg.sessionID] {
				select {
				case c.send <- msg.payload:
				default:
					// Slow subscriber; drop it rather than stall the room.
					h.dropLocked(c)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for _, room := range h.rooms {
				for c := range room {
					close(c.send)
				}
			}
			h.rooms = make(map[string]map[*client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// dropLocked removes a client from its room. Callers hold h.mu.
func (h *hub) dropLocked(c *client) {
	room := h.rooms[c.sessionID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.sessionID)
	}
	h.log.WithFields(logrus.Fields{"session_id": c.sessionID, "subscribers": len(room)}).Debug("live subscriber left")
}

func (h *hub) stop() {
	close(h.done)
}

// send queues a payload for every subscriber of the session. Payloads are
// dropped when the hub is saturated or stopped.
func (h *hub) send(sessionID string, payload []byte) {
	select {
	case h.broadcast <- roomMessage{sessionID: sessionID, payload: payload}:
	case <-h.done:
	default:
		h.log.WithField("session_id", sessionID).Warn("live broadcast queue full, dropping update")
	}
}

func (h *hub) detach(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// serveWS upgrades the request and runs the read/write pumps until the
// connection drops.
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("session_id", sessionID).Warn("websocket upgrade failed")
		return
	}

	c := &client{sessionID: sessionID, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump(h)
	go c.readPump(h)
}

func (c *client) writePump(h *hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.detach(c)
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pings/pongs flow and closes are noticed.
func (c *client) readPump(h *hub) {
	defer func() {
		h.detach(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
