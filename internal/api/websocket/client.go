package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/auth"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message after the upgrade
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The console UI is served from other origins; the token is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client represents a WebSocket client connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	logger     *zap.Logger
	remoteAddr string
}

type clientMessage struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`
}

// authenticate reads the first message, which must carry a token. It writes
// the reply directly; the write pump is not running yet.
func (c *Client) authenticate() (*auth.JWTClaims, bool) {
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var msg clientMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.logger.Debug("WebSocket closed before auth", zap.String("remote_addr", c.remoteAddr), zap.Error(err))
		return nil, false
	}

	if msg.Type != MessageTypeAuth {
		c.reject("First message must be authentication")
		return nil, false
	}
	if msg.Token == "" {
		c.reject("Missing token in auth message")
		return nil, false
	}

	claims, err := c.hub.validator.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr))
		c.reject("Invalid or expired token")
		return nil, false
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(NewMessage(MessageTypeAuthSuccess, map[string]interface{}{
		"username":    claims.Username,
		"role":        claims.Role,
		"permissions": claims.Role.Permissions(),
	})); err != nil {
		return nil, false
	}
	return claims, true
}

func (c *Client) reject(reason string) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(NewMessage(MessageTypeAuthFailed, map[string]string{"reason": reason}))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
}

// readPump drains the connection so pongs and close frames are processed.
// Clients have nothing to say after auth.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr))
			}
			return
		}
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame
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

// ServeWs upgrades the request, authenticates the client and registers it
// with the hub. The current console snapshot is queued as the first message.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		logger:     hub.logger,
		remoteAddr: conn.RemoteAddr().String(),
	}

	go func() {
		claims, ok := client.authenticate()
		if !ok {
			conn.Close()
			return
		}
		client.logger.Info("WebSocket client authenticated",
			zap.String("remote_addr", client.remoteAddr),
			zap.String("username", claims.Username))

		if hub.state != nil {
			if data, err := json.Marshal(NewMessage(MessageTypeSnapshot, hub.state.Snapshot())); err == nil {
				client.send <- data
			}
		}

		if !hub.add(client) {
			conn.Close()
			return
		}
		go client.writePump()
		client.readPump()
	}()
}
