package chat

import (
	"time"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/connection"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/wire"
	"github.com/ZRosserMcIntosh/railgun-sub001/pkg/logger"
)

// handlers builds the connection event handlers. They run on the
// connection's event goroutine, so each one only queues work onto the
// engine loop; arrival order is preserved by the queue.
func (c *Client) handlers() connection.Handlers {
	return connection.Handlers{
		Envelope: func(evt wire.MessageEvent) {
			_ = c.dispatch.do(func() { c.ingestEnvelope(evt) })
		},
		SendAck: func(ack wire.SendAck) {
			_ = c.dispatch.do(func() { c.applyAck(ack) })
		},
		SendFailed: func(failure wire.SendFailure) {
			_ = c.dispatch.do(func() { c.applyFailure(failure) })
		},
		TypingStart: func(evt wire.TypingEvent) {
			_ = c.dispatch.do(func() { c.applyTypingStart(evt) })
		},
		TypingStop: func(evt wire.TypingEvent) {
			_ = c.dispatch.do(func() { c.applyTypingStop(evt) })
		},
		Presence: func(evt wire.PresenceEvent) {
			_ = c.dispatch.do(func() { c.store.SetPresence(evt.UserID, evt.Status) })
		},
		Connectivity: func(connected bool) {
			_ = c.dispatch.do(func() { c.connectivityChanged(connected) })
		},
	}
}

// conversationOf maps event addressing to a store key. Direct events may
// carry the local user as the peer (the server echo of an own send names
// the recipient); the timeline key must always be the remote party.
func (c *Client) conversationOf(channelID, peerID, senderID string) store.ConversationKey {
	if channelID != "" {
		return store.ChannelKey(channelID)
	}
	peer := peerID
	if (peer == "" || peer == c.userID) && senderID != "" && senderID != c.userID {
		peer = senderID
	}
	return store.DirectKey(peer)
}

// ingestEnvelope is the inbound pipeline: extract the ciphertext, decrypt,
// and merge into the store. A corrupt or undecryptable envelope is logged
// and dropped; it must never stall ingestion of later messages.
func (c *Client) ingestEnvelope(evt wire.MessageEvent) {
	if evt.ID == "" {
		logger.Debugf("dropping inbound message without id")
		return
	}
	conv := c.conversationOf(evt.ChannelID, evt.PeerID, evt.SenderID)
	if !conv.Valid() {
		logger.Warnf("dropping message %s: unaddressable conversation", evt.ID)
		return
	}

	cipher, ok, err := evt.Cipher()
	if err != nil {
		logger.Warnf("dropping message %s: %v", evt.ID, err)
		return
	}
	if !ok {
		logger.Debugf("dropping message %s: no envelope", evt.ID)
		return
	}

	plaintext, err := c.codec.Decrypt(cipher, conv)
	if err != nil {
		logger.Warnf("dropping message %s: %v", evt.ID, err)
		return
	}

	msg := store.Message{
		ID:           evt.ID,
		LocalID:      evt.LocalID,
		SenderID:     evt.SenderID,
		Conversation: conv,
		Content:      plaintext,
		Timestamp:    evt.Timestamp,
		Status:       store.ParseStatus(evt.Status),
		ReplyToID:    evt.ReplyToID,
	}
	if err := c.store.Ingest(msg); err != nil {
		logger.Warnf("dropping message %s: %v", evt.ID, err)
		return
	}
	c.notifyConversation(conv)
}

func (c *Client) applyAck(ack wire.SendAck) {
	conv, ok := c.store.ReconcileAck(ack.LocalID, ack.ID, store.ParseStatus(ack.Status), ack.Timestamp)
	if !ok {
		// Already reconciled via push echo, or evicted. Not an error.
		logger.Debugf("ack for unknown token %s", ack.LocalID)
		return
	}
	c.notifyConversation(conv)
}

func (c *Client) applyFailure(failure wire.SendFailure) {
	reason := failure.Reason
	if reason == "" {
		reason = "send rejected"
	}
	conv, ok := c.store.ReconcileFailure(failure.LocalID, reason)
	if !ok {
		logger.Debugf("failure for unknown token %s", failure.LocalID)
		return
	}
	c.notifyConversation(conv)
}

func (c *Client) applyTypingStart(evt wire.TypingEvent) {
	if evt.UserID == c.userID {
		return
	}
	conv := c.conversationOf(evt.ChannelID, evt.PeerID, evt.UserID)
	if !conv.Valid() {
		return
	}
	at := evt.At
	if at == 0 {
		at = time.Now().UnixMilli()
	}
	c.store.TypingStart(conv, evt.UserID, evt.Username, at)
	c.notifyTyping(conv)
}

func (c *Client) applyTypingStop(evt wire.TypingEvent) {
	if evt.UserID == c.userID {
		return
	}
	conv := c.conversationOf(evt.ChannelID, evt.PeerID, evt.UserID)
	if !conv.Valid() {
		return
	}
	c.store.TypingStop(conv, evt.UserID)
	c.notifyTyping(conv)
}

// connectivityChanged reacts to session establishment and loss. Typing
// state is advisory and rebuilt from the live event stream, so it is
// dropped whenever the session goes down.
func (c *Client) connectivityChanged(connected bool) {
	if !connected {
		c.store.ClearTyping()
	}
	c.notifyConnectivity(connected)
}
