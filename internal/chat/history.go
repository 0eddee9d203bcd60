package chat

import (
	"context"
	"fmt"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
	"github.com/ZRosserMcIntosh/railgun-sub001/pkg/logger"
)

// LoadOlder fetches the next older history page for the conversation and
// merges it into the timeline. It returns the number of net-new records.
//
// The fetch runs off the engine loop; only the merge is serialized, so
// real-time ingestion racing the fetch is neither lost nor duplicated.
// The merge dedups by server id against whatever arrived meanwhile.
func (c *Client) LoadOlder(ctx context.Context, conv store.ConversationKey) (int, error) {
	if !conv.Valid() {
		return 0, fmt.Errorf("invalid conversation %q", conv.String())
	}
	if !c.store.HasMore(conv) {
		return 0, nil
	}

	before := int64(0)
	if msgs := c.store.Messages(conv); len(msgs) > 0 {
		before = msgs[0].Timestamp
	}

	pageSize := c.cfg.HistoryPageSize
	page, err := c.history.FetchPage(ctx, conv, before, pageSize)
	if err != nil {
		return 0, fmt.Errorf("fetch history page: %w", err)
	}

	decrypted := make([]store.Message, 0, len(page))
	for _, evt := range page {
		if evt.ID == "" {
			continue
		}
		cipher, ok, err := evt.Cipher()
		if err != nil || !ok {
			logger.Warnf("skipping history message %s: undecodable envelope", evt.ID)
			continue
		}
		plaintext, err := c.codec.Decrypt(cipher, conv)
		if err != nil {
			logger.Warnf("skipping history message %s: %v", evt.ID, err)
			continue
		}
		decrypted = append(decrypted, store.Message{
			ID:           evt.ID,
			LocalID:      evt.LocalID,
			SenderID:     evt.SenderID,
			Conversation: conv,
			Content:      plaintext,
			Timestamp:    evt.Timestamp,
			Status:       store.ParseStatus(evt.Status),
			ReplyToID:    evt.ReplyToID,
		})
	}

	// hasMore keys off the raw page length: records dropped by decryption
	// failures must not make a full page look like the end of history.
	hasMore := pageSize > 0 && len(page) >= pageSize

	value, err := c.dispatch.call(func() (interface{}, error) {
		added, err := c.store.MergePage(conv, decrypted, hasMore)
		if err != nil {
			return nil, err
		}
		if added > 0 {
			c.notifyConversation(conv)
		}
		return added, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}
