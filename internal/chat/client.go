// Package chat is the client engine: it ties the connection manager, the
// envelope codec, the conversation store, and the history client together
// into the send/receive pipelines the application drives. All store
// mutations funnel through one dispatcher goroutine so reconciliation,
// ingestion, and history merges interleave in a defined order.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/config"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/connection"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/credstore"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/crypto"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/history"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/wire"
	"github.com/ZRosserMcIntosh/railgun-sub001/pkg/logger"
)

// Listener receives engine events. Calls arrive on a dedicated callback
// goroutine, never on the engine loop, so implementations may block
// briefly without stalling ingestion.
type Listener interface {
	// OnConnectivity reports session establishment and loss.
	OnConnectivity(connected bool)
	// OnConversationUpdated fires after any mutation of the conversation's
	// timeline.
	OnConversationUpdated(conv store.ConversationKey)
	// OnTyping fires when the conversation's typing set changes.
	OnTyping(conv store.ConversationKey)
	// OnAuthExpired fires when the server rejects the stored credential;
	// the application must run a fresh login.
	OnAuthExpired(err error)
}

// Options configures an engine Client.
type Options struct {
	Config *config.Config
	// Creds supplies the session token and master key.
	Creds *credstore.Store
	// Transport opens connections; defaults are wired by the caller
	// (internal/socket in production, a fake in tests).
	Transport connection.Transport
	// UserID identifies the local user; stamped on optimistic records.
	UserID string
	// Listener receives engine events. Optional.
	Listener Listener
}

// Client is the chat engine facade.
type Client struct {
	cfg      *config.Config
	creds    *credstore.Store
	codec    *crypto.Codec
	store    *store.Store
	conn     *connection.Manager
	history  *history.Client
	userID   string
	listener Listener

	dispatch  *dispatcher
	callbacks *dispatcher

	shutdownOnce sync.Once
	watchdogStop chan struct{}
}

// New creates an engine client. It does not connect.
func New(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if opts.Creds == nil {
		return nil, fmt.Errorf("credential store required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("user id required")
	}

	master, err := opts.Creds.MasterKey()
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}
	codec, err := crypto.NewCodec(master)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:          opts.Config,
		creds:        opts.Creds,
		codec:        codec,
		store:        store.New(),
		history:      history.NewClient(opts.Config.ServerURL),
		userID:       opts.UserID,
		listener:     opts.Listener,
		dispatch:     newDispatcher(256),
		callbacks:    newDispatcher(256),
		watchdogStop: make(chan struct{}),
	}

	c.conn = connection.NewManager(connection.Options{
		ServerURL:        opts.Config.ServerURL,
		Transport:        opts.Transport,
		ConnectTimeout:   opts.Config.ConnectTimeout,
		ReconnectFloor:   opts.Config.ReconnectFloor,
		ReconnectCeiling: opts.Config.ReconnectCeiling,
		Handlers:         c.handlers(),
		OnAuthFailure:    c.authExpired,
	})

	go c.watchdog()
	return c, nil
}

// Connect loads the stored credential and establishes the session.
func (c *Client) Connect(ctx context.Context) error {
	token, err := c.creds.Token()
	if err != nil {
		return err
	}
	c.history.SetToken(token)
	return c.conn.Connect(ctx, token)
}

// Disconnect tears the session down without shutting the engine down.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Shutdown disconnects and stops the engine goroutines. The client is not
// reusable afterwards.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.watchdogStop)
		c.conn.Disconnect()
		c.dispatch.stop()
		c.callbacks.stop()
	})
}

// Connected reports whether the session is established.
func (c *Client) Connected() bool {
	return c.conn.Connected()
}

// ConnectionState returns the session lifecycle state.
func (c *Client) ConnectionState() connection.State {
	return c.conn.State()
}

// Messages returns the conversation's ordered timeline.
func (c *Client) Messages(conv store.ConversationKey) []store.Message {
	return c.store.Messages(conv)
}

// HasMore reports whether older history is believed to exist.
func (c *Client) HasMore(conv store.ConversationKey) bool {
	return c.store.HasMore(conv)
}

// Conversations lists every conversation seen this session.
func (c *Client) Conversations() []store.ConversationKey {
	return c.store.Conversations()
}

// Typing returns the conversation's current typing set.
func (c *Client) Typing(conv store.ConversationKey) []store.TypingEntry {
	return c.store.Typing(conv)
}

// Presence returns the known user presence map.
func (c *Client) Presence() map[string]string {
	return c.store.Presence()
}

// Join subscribes the session to a conversation.
func (c *Client) Join(conv store.ConversationKey) error {
	if !conv.Valid() {
		return fmt.Errorf("invalid conversation %q", conv.String())
	}
	return c.conn.JoinRoom(wire.RoomRef{ChannelID: conv.ChannelID, PeerID: conv.PeerID})
}

// Leave unsubscribes the session from a conversation.
func (c *Client) Leave(conv store.ConversationKey) error {
	if !conv.Valid() {
		return fmt.Errorf("invalid conversation %q", conv.String())
	}
	return c.conn.LeaveRoom(wire.RoomRef{ChannelID: conv.ChannelID, PeerID: conv.PeerID})
}

// MarkRead relays read receipts for remote messages.
func (c *Client) MarkRead(conv store.ConversationKey, messageIDs []string) error {
	return c.ackRelay(conv, messageIDs, store.StatusRead)
}

// MarkDelivered relays delivery receipts for remote messages.
func (c *Client) MarkDelivered(conv store.ConversationKey, messageIDs []string) error {
	return c.ackRelay(conv, messageIDs, store.StatusDelivered)
}

func (c *Client) ackRelay(conv store.ConversationKey, messageIDs []string, status store.Status) error {
	if !conv.Valid() {
		return fmt.Errorf("invalid conversation %q", conv.String())
	}
	if len(messageIDs) == 0 {
		return nil
	}
	return c.conn.AckRelay(wire.AckRelay{
		ChannelID:  conv.ChannelID,
		PeerID:     conv.PeerID,
		MessageIDs: messageIDs,
		Status:     string(status),
	})
}

func (c *Client) authExpired(err error) {
	if clearErr := c.creds.ClearToken(); clearErr != nil {
		logger.Warnf("clear rejected credential: %v", clearErr)
	}
	l := c.listener
	if l == nil {
		return
	}
	_ = c.callbacks.do(func() { l.OnAuthExpired(err) })
}

func (c *Client) notifyConversation(conv store.ConversationKey) {
	l := c.listener
	if l == nil {
		return
	}
	_ = c.callbacks.do(func() { l.OnConversationUpdated(conv) })
}

func (c *Client) notifyTyping(conv store.ConversationKey) {
	l := c.listener
	if l == nil {
		return
	}
	_ = c.callbacks.do(func() { l.OnTyping(conv) })
}

func (c *Client) notifyConnectivity(connected bool) {
	l := c.listener
	if l == nil {
		return
	}
	_ = c.callbacks.do(func() { l.OnConnectivity(connected) })
}

// watchdog periodically fails stale pending records and expires old
// typing entries. Disabled sweeps are skipped, not unscheduled, so the
// ticker stays simple.
func (c *Client) watchdog() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.watchdogStop:
			return
		case <-ticker.C:
			now := time.Now().UnixMilli()
			_ = c.dispatch.do(func() { c.sweep(now) })
		}
	}
}

// typingTTL bounds how long a typing entry survives without a refresh.
const typingTTL = 10 * time.Second

func (c *Client) sweep(now int64) {
	if timeout := c.cfg.PendingTimeout; timeout > 0 {
		cutoff := now - timeout.Milliseconds()
		failed := c.store.FailStalePending(cutoff, "send timed out")
		if len(failed) > 0 {
			logger.Warnf("failed %d stale pending message(s)", len(failed))
			seen := make(map[string]bool)
			for _, msg := range failed {
				if seen[msg.Conversation.String()] {
					continue
				}
				seen[msg.Conversation.String()] = true
				c.notifyConversation(msg.Conversation)
			}
		}
	}

	c.store.ExpireTyping(now - typingTTL.Milliseconds())
}
