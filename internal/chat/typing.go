package chat

import (
	"fmt"
	"time"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/wire"
)

// StartTyping signals that the local user is composing in the
// conversation. Typing is advisory: failures while disconnected are
// swallowed, the signal is simply missed.
func (c *Client) StartTyping(conv store.ConversationKey) error {
	return c.sendTyping(conv, true)
}

// StopTyping signals that the local user stopped composing.
func (c *Client) StopTyping(conv store.ConversationKey) error {
	return c.sendTyping(conv, false)
}

func (c *Client) sendTyping(conv store.ConversationKey, start bool) error {
	if !conv.Valid() {
		return fmt.Errorf("invalid conversation %q", conv.String())
	}
	sig := wire.TypingEvent{
		ChannelID: conv.ChannelID,
		PeerID:    conv.PeerID,
		UserID:    c.userID,
		At:        time.Now().UnixMilli(),
	}
	// Advisory signal; one missed while offline is fine.
	if start {
		_ = c.conn.TypingStart(sig)
	} else {
		_ = c.conn.TypingStop(sig)
	}
	return nil
}
