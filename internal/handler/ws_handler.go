package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/auth"
	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/internal/service"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// WSHandler upgrades connections and bridges them to the world loop.
type WSHandler struct {
	hub    *Hub
	world  *service.World
	jwtMgr *auth.JWTManager
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, world *service.World, jwtMgr *auth.JWTManager) *WSHandler {
	return &WSHandler{hub: hub, world: world, jwtMgr: jwtMgr}
}

// ServeWS handles GET /ws — upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:   conn,
		player: claims.PlayerID,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	reply := make(chan service.JoinResult, 1)
	h.world.Inbox <- service.Join{PlayerID: claims.PlayerID, Reply: reply}
	res := <-reply

	welcome, err := protocol.Encode(protocol.MsgWelcome, protocol.Welcome{
		PlayerID: claims.PlayerID,
		Faction:  res.Faction.String(),
		TickRate: res.TickRate,
		World:    res.World,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode welcome")
		h.hub.Unregister(client)
		conn.Close()
		return
	}
	client.send <- welcome

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("playerId", claims.PlayerID).Int("total", h.hub.ConnectionCount()).Msg("Client connected")
}

// readPump reads input messages from the connection and forwards them
// to the world loop. Exits on any read error; the deferred cleanup
// detaches the player.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		if h.hub.PlayerConnectionCount(c.player) == 0 {
			h.world.Inbox <- service.Leave{PlayerID: c.player}
		}
		log.Info().Str("playerId", c.player).Msg("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("playerId", c.player).Msg("WebSocket unexpected close")
			}
			break
		}

		env, err := protocol.DecodeEnvelope(message)
		if err != nil {
			continue
		}
		switch env.T {
		case protocol.MsgInput:
			in, err := protocol.DecodePayload[protocol.Input](env)
			if err != nil {
				continue
			}
			select {
			case h.world.Inbox <- service.InputCmd{PlayerID: c.player, Input: in}:
			default:
				// World inbox full: drop the input, the next one
				// supersedes it anyway.
			}
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
