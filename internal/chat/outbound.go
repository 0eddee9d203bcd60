package chat

import (
	"context"
	"time"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/wire"
	"github.com/ZRosserMcIntosh/railgun-sub001/pkg/logger"
)

// Send encrypts plaintext for the conversation, inserts an optimistic
// pending record, and transmits the envelope. It returns the correlation
// token as soon as transmission is handed off; delivery confirmation
// arrives later through ack reconciliation.
//
// Transmit-stage problems never surface as an error here: the pending
// record flips to failed in the store, which is where the caller watches
// delivery outcomes anyway. When the session is down, exactly one silent
// reconnect with the retained credential is attempted before giving up.
func (c *Client) Send(ctx context.Context, conv store.ConversationKey, plaintext, replyToID string) (string, error) {
	envelope, localID, err := c.codec.PrepareEnvelope(plaintext, conv)
	if err != nil {
		return "", err
	}

	msg := store.Message{
		LocalID:      localID,
		SenderID:     c.userID,
		Conversation: conv,
		Content:      plaintext,
		Timestamp:    time.Now().UnixMilli(),
		ReplyToID:    replyToID,
	}
	if _, err := c.dispatch.call(func() (interface{}, error) {
		if err := c.store.InsertPending(msg); err != nil {
			return nil, err
		}
		c.notifyConversation(conv)
		return nil, nil
	}); err != nil {
		return "", err
	}

	if !c.conn.Connected() {
		redialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		err := c.conn.Redial(redialCtx)
		cancel()
		if err != nil {
			logger.Warnf("send %s: reconnect failed: %v", localID, err)
			c.failSend(localID, "not connected")
			return localID, nil
		}
	}

	out := wire.OutboundMessage{
		LocalID:   localID,
		ChannelID: conv.ChannelID,
		PeerID:    conv.PeerID,
		Envelope:  envelope,
		ReplyToID: replyToID,
	}
	if err := c.conn.SendMessage(out); err != nil {
		logger.Warnf("send %s: transmit failed: %v", localID, err)
		c.failSend(localID, err.Error())
	}
	return localID, nil
}

func (c *Client) failSend(localID, reason string) {
	_ = c.dispatch.do(func() {
		if conv, ok := c.store.ReconcileFailure(localID, reason); ok {
			c.notifyConversation(conv)
		}
	})
}
