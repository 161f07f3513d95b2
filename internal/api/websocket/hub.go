package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/HaptiKnitConsole/internal/auth"
	"github.com/KevinKickass/HaptiKnitConsole/internal/console"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"go.uber.org/zap"
)

// TokenValidator authenticates the first message of a client.
type TokenValidator interface {
	ValidateToken(token string) (*auth.JWTClaims, error)
}

// StateProvider supplies the snapshot sent to a client right after auth.
type StateProvider interface {
	Snapshot() console.State
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	logger    *zap.Logger
	validator TokenValidator
	state     StateProvider
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, validator TokenValidator) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		validator:  validator,
	}
}

// SetStateProvider sets the snapshot source for new clients.
func (h *Hub) SetStateProvider(p StateProvider) {
	h.state = p
}

// Run starts the hub's main event loop. It returns when ctx is done and
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.String("message_type", string(message.Type)),
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.remoteAddr))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// Publish forwards console events to every client.
func (h *Hub) Publish(kind console.EventKind, data any) {
	h.Broadcast(NewMessage(MessageType(kind), data))
}

// ConnectionStateChanged is registered as a transport state listener.
func (h *Hub) ConnectionStateChanged(previous, current transport.State) {
	h.Broadcast(NewConnectionStateMessage(previous, current))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
