package ws

import (
	"encoding/json"
	"errors"

	"github.com/Nerd-coderZero/Chat-application/internal/auth"
)

// Wire-level event types. Every frame in either direction is a JSON object
// carrying one of these discriminators.
const (
	TypeConnectionEstablished = "connection_established"
	TypeChatMessage           = "chat_message"
	TypeError                 = "error"
)

var (
	ErrInvalidJSON    = errors.New("invalid message format")
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingMessage = errors.New("missing message field")
)

// ConnectionEstablished is sent once, right after successful registration.
type ConnectionEstablished struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	User    *auth.Identity `json:"user"`
}

// ChatBroadcast is the server→client form of a chat message: the sender id
// is always the authenticated identity, never client-supplied.
type ChatBroadcast struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Sender  int64  `json:"sender"`
}

// ErrorEvent reports a per-message problem in-band without ending the session.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// InboundChat is a validated client frame. ReceiverID is informational
// (audit/history only); fan-out is room-scoped.
type InboundChat struct {
	Text       string
	ReceiverID int64
}

type inboundFrame struct {
	Type       string  `json:"type"`
	Message    *string `json:"message"`
	ReceiverID int64   `json:"receiver_id"`
}

// parseInbound validates a client frame. A frame that is not JSON, carries
// an unrecognized type, or lacks the message field is rejected; rejection is
// message-fatal only, never session-fatal.
func parseInbound(data []byte) (*InboundChat, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, ErrInvalidJSON
	}
	if f.Type != TypeChatMessage {
		return nil, ErrUnknownType
	}
	if f.Message == nil {
		return nil, ErrMissingMessage
	}
	return &InboundChat{Text: *f.Message, ReceiverID: f.ReceiverID}, nil
}
