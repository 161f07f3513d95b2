package websocket

import (
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/console"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeConnectionState MessageType = "connection_state"
	MessageTypeSnapshot        MessageType = "snapshot"

	// Console state, same names as console.EventKind
	MessageTypePlacement MessageType = MessageType(console.EventPlacement)
	MessageTypePressures MessageType = MessageType(console.EventPressures)
	MessageTypeDispatch  MessageType = MessageType(console.EventDispatch)
	MessageTypeBattery   MessageType = MessageType(console.EventBattery)

	// Handshake
	MessageTypeAuth        MessageType = "auth"
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type ConnectionStateData struct {
	State    transport.State `json:"state"`
	Previous transport.State `json:"previous_state"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewConnectionStateMessage(previous, current transport.State) Message {
	return NewMessage(MessageTypeConnectionState, ConnectionStateData{
		State:    current,
		Previous: previous,
	})
}
