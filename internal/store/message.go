package store

import "fmt"

// Status is the delivery state of a message record.
type Status string

const (
	// StatusPending marks an optimistic local record awaiting server
	// acknowledgment.
	StatusPending Status = "pending"
	// StatusSent marks a record the server has accepted.
	StatusSent Status = "sent"
	// StatusDelivered marks a record delivered to the recipient device.
	StatusDelivered Status = "delivered"
	// StatusRead marks a record the recipient has read.
	StatusRead Status = "read"
	// StatusFailed marks a local record whose send failed terminally.
	StatusFailed Status = "failed"
)

// ParseStatus maps a wire status string onto a Status, defaulting to sent
// for unknown or empty values.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return Status(raw)
	default:
		return StatusSent
	}
}

// ConversationKey identifies a conversation: exactly one of ChannelID or
// PeerID is set.
type ConversationKey struct {
	// ChannelID identifies a channel conversation.
	ChannelID string `json:"channelId,omitempty"`
	// PeerID identifies a direct (peer-to-peer) conversation.
	PeerID string `json:"peerId,omitempty"`
}

// ChannelKey returns the conversation key for a channel.
func ChannelKey(channelID string) ConversationKey {
	return ConversationKey{ChannelID: channelID}
}

// DirectKey returns the conversation key for a direct conversation.
func DirectKey(peerID string) ConversationKey {
	return ConversationKey{PeerID: peerID}
}

// Valid reports whether exactly one identifier is set.
func (k ConversationKey) Valid() bool {
	return (k.ChannelID == "") != (k.PeerID == "")
}

// String returns a stable map key for the conversation.
func (k ConversationKey) String() string {
	if k.ChannelID != "" {
		return "channel:" + k.ChannelID
	}
	return "peer:" + k.PeerID
}

// Message is one record in a conversation timeline. Content is plaintext;
// the crypto boundary is crossed before a Message enters the store.
type Message struct {
	// ID is the server-assigned identifier, empty while pending.
	ID string `json:"id,omitempty"`
	// LocalID is the client-generated correlation token. It is always set
	// on locally originated messages and identifies the record until ID
	// is assigned.
	LocalID string `json:"localId,omitempty"`
	// SenderID identifies the author.
	SenderID string `json:"senderId"`
	// Conversation is the timeline this message belongs to.
	Conversation ConversationKey `json:"conversation"`
	// Content is the decrypted message body.
	Content string `json:"content"`
	// Timestamp is milliseconds since epoch; timelines order by it.
	Timestamp int64 `json:"timestamp"`
	// Status is the delivery state.
	Status Status `json:"status"`
	// ReplyToID references the message this one replies to, if any.
	ReplyToID string `json:"replyToId,omitempty"`
	// Error carries the failure reason when Status is failed.
	Error string `json:"error,omitempty"`
}

func (m Message) validate() error {
	if !m.Conversation.Valid() {
		return fmt.Errorf("message needs exactly one of channelId or peerId")
	}
	return nil
}
