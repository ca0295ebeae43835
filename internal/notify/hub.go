package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is how many events may wait for a slow client before it is dropped.
	sendBuffer = 16

	maxClientMessage = 512
)

// Hub tracks websocket connections per user. A user may hold several
// connections (tabs, devices) and every one of them receives each event.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*conn]struct{}
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

type conn struct {
	ws     *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewHub creates an empty hub. allowedOrigins lists the origins permitted to
// open a socket; an empty list allows any origin.
func NewHub(log zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		conns: make(map[string]map[*conn]struct{}),
		log:   log.With().Str("component", "notify").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS upgrades r to a websocket bound to userID. The caller has already
// authenticated the request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.log.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	c := &conn{ws: ws, userID: userID, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// Publish implements Publisher.
func (h *Hub) Publish(userID string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.log.Debug().Str("user_id", userID).Str("type", event.Type).Msg("no active connections")
		return
	}

	for _, c := range targets {
		select {
		case c.send <- payload:
		case <-c.done:
		default:
			h.log.Warn().Str("user_id", userID).Msg("dropping slow websocket client")
			h.unregister(c)
		}
	}
}

// ConnectionCount reports the live connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*conn
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.log.Info().Str("user_id", c.userID).Int("connections", n).Msg("websocket connected")
}

// unregister removes c and signals its pumps to stop. The send channel is
// never closed, so late publishers cannot panic.
func (h *Hub) unregister(c *conn) {
	c.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.conns[c.userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.conns, c.userID)
			}
		}
		h.mu.Unlock()
		close(c.done)

		h.log.Info().Str("user_id", c.userID).Msg("websocket disconnected")
	})
}

// readPump answers text "ping" keepalives and notices disconnects.
func (h *Hub) readPump(c *conn) {
	defer h.unregister(c)

	c.ws.SetReadLimit(maxClientMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if string(msg) == "ping" {
			select {
			case c.send <- []byte("pong"):
			default:
			}
		}
	}
}

// writePump is the only goroutine writing to c.ws.
func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
