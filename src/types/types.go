package types

import (
	"encoding/json"
	"time"
)

// Message type discriminators for the real-time channel.
const (
	TypeInfo           = "info"
	TypeAuth           = "auth"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeSubscribe      = "subscribe"
	TypeUnsubscribe    = "unsubscribe"
	TypeShipmentUpdate = "shipment_update"
)

// Message is the single JSON envelope exchanged over the WebSocket.
// Type selects which of the optional fields are meaningful; fields not
// belonging to a given type are omitted on the wire.
type Message struct {
	Type           string          `json:"type"`
	Message        string          `json:"message,omitempty"`
	Token          string          `json:"token,omitempty"`
	Success        *bool           `json:"success,omitempty"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// NewInfo builds the welcome message sent once per connection.
func NewInfo(text string) Message {
	return Message{Type: TypeInfo, Message: text}
}

// NewAuthAck builds the server response to an auth attempt.
func NewAuthAck(ok bool, text string) Message {
	return Message{Type: TypeAuth, Success: &ok, Message: text}
}

// NewPing builds a heartbeat probe.
func NewPing() Message { return Message{Type: TypePing} }

// NewPong builds a heartbeat reply.
func NewPong() Message { return Message{Type: TypePong} }

// NewShipmentUpdate builds the push sent after a shipment mutation.
// The payload is marshalled once so every broadcast reuses the bytes.
func NewShipmentUpdate(trackingNumber string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:           TypeShipmentUpdate,
		TrackingNumber: trackingNumber,
		Data:           raw,
	}, nil
}

// Identity is the claim decoded from a verified session token.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == "admin" }

// TokenVerifier decodes a session token into an identity claim.
// The hub depends on this interface rather than a concrete JWT library.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID            string    `json:"id"`
	ConnectedAt   time.Time `json:"connected_at"`
	Authenticated bool      `json:"authenticated"`
	Admin         bool      `json:"admin"`
	Watching      []string  `json:"watching,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
