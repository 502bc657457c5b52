package handler

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSConn wraps a WebSocket connection with its player id and outbound
// buffer. Writes go through the send channel so the write pump is the
// only goroutine touching the socket.
type WSConn struct {
	conn   *websocket.Conn
	player string
	send   chan []byte
}

// Hub tracks live connections keyed by player. It implements the world
// service's Broadcaster: sends are non-blocking and a client whose
// buffer is full loses the frame rather than stalling the tick loop.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*WSConn]bool
	players map[string]map[*WSConn]bool // playerID -> set of connections
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		conns:   make(map[*WSConn]bool),
		players: make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = true
	if h.players[c.player] == nil {
		h.players[c.player] = make(map[*WSConn]bool)
	}
	h.players[c.player][c] = true
}

// Unregister removes a connection and closes its send channel.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.conns[c] {
		return
	}
	delete(h.conns, c)
	if set, ok := h.players[c.player]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.players, c.player)
		}
	}
	close(c.send)
}

// Broadcast sends a frame to every connection.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("playerId", c.player).Msg("Dropping frame, send buffer full")
		}
	}
}

// SendTo sends a frame to every connection a player holds.
func (h *Hub) SendTo(playerID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.players[playerID] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// PlayerConnectionCount returns how many connections a player holds.
func (h *Hub) PlayerConnectionCount(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players[playerID])
}
