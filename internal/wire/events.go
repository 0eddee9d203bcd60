// Package wire defines the envelope-level transport contract between the
// client and the chat server: event names, payload shapes, and the
// permissive ciphertext extraction applied to inbound message events.
package wire

import (
	"encoding/json"
	"fmt"
)

// Client <-> server event names.
const (
	// EventAuth carries the credential after the transport handshake; the
	// server answers with a ResultAck.
	EventAuth = "auth"
	// EventMessage carries an encrypted message envelope in either
	// direction.
	EventMessage = "message"
	// EventMessageAck acknowledges a client send by correlation token.
	EventMessageAck = "message-ack"
	// EventMessageFailed reports a terminally failed client send.
	EventMessageFailed = "message-failed"
	// EventTypingStart and EventTypingStop carry advisory typing signals.
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
	// EventPresence carries user presence transitions.
	EventPresence = "presence"
	// EventJoin and EventLeave subscribe the connection to a conversation.
	EventJoin  = "join"
	EventLeave = "leave"
	// EventAckRelay relays delivery/read receipts for remote messages.
	EventAckRelay = "ack-relay"
)

// Ack result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ResultAck is the minimal ACK response shape used by emit-with-ack
// handlers.
type ResultAck struct {
	// Result is one of "success" or "error".
	Result string `json:"result"`
	// Message is an optional error annotation.
	Message string `json:"message,omitempty"`
}

// MessageEvent is the server -> client "message" event payload.
//
// The encrypted payload has appeared in several shapes across client
// generations:
//   - {"envelope":"<cipher>"}
//   - {"envelope":{"c":"<cipher>"}}
//   - {"envelope":{"t":"encrypted","c":"<cipher>"}}
//
// This type is intentionally permissive and is used only to extract the
// ciphertext and reconciliation metadata.
type MessageEvent struct {
	// ID is the server-assigned message id.
	ID string `json:"id"`
	// LocalID is the sender's correlation token, echoed back so the
	// sending client can reconcile its optimistic record.
	LocalID string `json:"localId,omitempty"`
	// SenderID identifies the author.
	SenderID string `json:"senderId"`
	// ChannelID and PeerID identify the conversation; exactly one is set.
	ChannelID string `json:"channelId,omitempty"`
	PeerID    string `json:"peerId,omitempty"`
	// Envelope contains the encrypted payload (shape varies by client).
	Envelope json.RawMessage `json:"envelope,omitempty"`
	// Timestamp is milliseconds since epoch, server clock.
	Timestamp int64 `json:"timestamp"`
	// Status is the delivery status ("sent", "delivered", "read").
	Status string `json:"status,omitempty"`
	// ReplyToID references the replied-to message, if any.
	ReplyToID string `json:"replyToId,omitempty"`
}

// OutboundMessage is the client -> server "message" event payload.
type OutboundMessage struct {
	LocalID   string `json:"localId"`
	ChannelID string `json:"channelId,omitempty"`
	PeerID    string `json:"peerId,omitempty"`
	Envelope  string `json:"envelope"`
	ReplyToID string `json:"replyToId,omitempty"`
}

// SendAck is the "message-ack" event payload.
type SendAck struct {
	LocalID   string `json:"localId"`
	ID        string `json:"id"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SendFailure is the "message-failed" event payload.
type SendFailure struct {
	LocalID string `json:"localId"`
	Reason  string `json:"reason,omitempty"`
}

// RoomRef is the "join"/"leave" payload identifying a conversation.
type RoomRef struct {
	ChannelID string `json:"channelId,omitempty"`
	PeerID    string `json:"peerId,omitempty"`
}

// TypingEvent is the payload of "typing-start" and "typing-stop".
type TypingEvent struct {
	ChannelID string `json:"channelId,omitempty"`
	PeerID    string `json:"peerId,omitempty"`
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	At        int64  `json:"at,omitempty"`
}

// PresenceEvent is the "presence" event payload.
type PresenceEvent struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// AckRelay is the client -> server "ack-relay" payload marking remote
// messages delivered or read.
type AckRelay struct {
	ChannelID  string   `json:"channelId,omitempty"`
	PeerID     string   `json:"peerId,omitempty"`
	MessageIDs []string `json:"messageIds"`
	Status     string   `json:"status"`
}

// Decode converts a loosely typed event payload (socket.io hands us
// map[string]any) into a concrete wire struct via a JSON round trip.
func Decode(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	return nil
}

// ToPayload converts a wire struct into the map payload the socket layer
// emits.
func ToPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
