// Package connection owns the logical session with the chat server:
// connect and authenticate, detect drops, reconnect with bounded backoff
// replaying the last credential, and fan inbound events out to typed
// handlers. It carries no conversation state; that belongs to the store.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/wire"
	"github.com/ZRosserMcIntosh/railgun-sub001/pkg/logger"
)

// Conn is one established transport connection. Implementations deliver
// events from a single goroutine, in arrival order.
type Conn interface {
	// On registers a handler for a named server event.
	On(event string, fn func(payload map[string]any))
	// OnDisconnect registers a handler for transport loss.
	OnDisconnect(fn func(reason string))
	// Emit sends an event without waiting for a response.
	Emit(event string, payload map[string]any) error
	// EmitWithAck sends an event and waits for the server's ack payload.
	EmitWithAck(event string, payload map[string]any, timeout time.Duration) (map[string]any, error)
	// Close tears the connection down.
	Close() error
}

// Transport opens transport connections. Dial blocks until the
// transport-level handshake completes or ctx is done.
type Transport interface {
	Dial(ctx context.Context, serverURL string) (Conn, error)
}

// Handlers receives typed connection events. Handlers are invoked from
// the connection's event goroutine and must not block; consumers queue
// onto their own loop.
type Handlers struct {
	Envelope     func(wire.MessageEvent)
	SendAck      func(wire.SendAck)
	SendFailed   func(wire.SendFailure)
	TypingStart  func(wire.TypingEvent)
	TypingStop   func(wire.TypingEvent)
	Presence     func(wire.PresenceEvent)
	Connectivity func(connected bool)
}

// Options configures a Manager.
type Options struct {
	// ServerURL is the base URL passed to the transport.
	ServerURL string
	// Transport opens physical connections.
	Transport Transport
	// Handlers receives connection events.
	Handlers Handlers
	// ConnectTimeout bounds one connect attempt including authentication,
	// and is also each Connect caller's independent wait ceiling.
	ConnectTimeout time.Duration
	// ReconnectFloor and ReconnectCeiling bound the automatic reconnect
	// delay.
	ReconnectFloor   time.Duration
	ReconnectCeiling time.Duration
	// OnAuthFailure is called when the server rejects the replay
	// credential, so the application can force a fresh login.
	OnAuthFailure func(error)
}

// Manager drives the connection state machine:
//
//	Disconnected -> Connecting -> Authenticating -> Connected
//	Connected -> Reconnecting -> Connecting -> ... (automatic, unbounded)
//	any -> Disconnected (explicit request, or rejected credential)
type Manager struct {
	opts Options

	mu            sync.Mutex
	state         State
	conn          Conn
	cred          string
	recon         *reconnector
	timer         *time.Timer
	waiters       []chan error
	epoch         uint64
	attemptActive bool
}

// NewManager creates a manager. It does not connect.
func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReconnectFloor <= 0 {
		opts.ReconnectFloor = time.Second
	}
	if opts.ReconnectCeiling <= 0 {
		opts.ReconnectCeiling = 5 * time.Second
	}
	return &Manager{
		opts:  opts,
		state: StateDisconnected,
		recon: newReconnector(opts.ReconnectFloor, opts.ReconnectCeiling),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the session is established.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Connect establishes a session with the given credential. It returns
// only after the server has confirmed authentication, or fails with
// ErrConnectTimeout, *AuthError, or *TransportError. A concurrent call
// while an attempt is in flight does not open a second transport; it
// waits on the in-flight attempt under its own timeout ceiling.
func (m *Manager) Connect(ctx context.Context, credential string) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateConnecting, StateAuthenticating:
		w := m.addWaiterLocked()
		m.mu.Unlock()
		return m.await(ctx, w)
	case StateReconnecting:
		// Adopt the caller's credential and attempt right away instead of
		// waiting out the backoff timer.
		m.cred = credential
		w := m.addWaiterLocked()
		m.stopTimerLocked()
		if !m.attemptActive {
			m.startAttemptLocked(true)
		}
		m.mu.Unlock()
		return m.await(ctx, w)
	default: // StateDisconnected
		m.cred = credential
		w := m.addWaiterLocked()
		m.startAttemptLocked(false)
		m.mu.Unlock()
		return m.await(ctx, w)
	}
}

// Redial attempts a connect using the last-known credential. It fails
// with ErrNotConnected when no credential is retained (never connected,
// or explicitly disconnected).
func (m *Manager) Redial(ctx context.Context) error {
	m.mu.Lock()
	cred := m.cred
	m.mu.Unlock()
	if cred == "" {
		return ErrNotConnected
	}
	return m.Connect(ctx, cred)
}

// Disconnect tears the session down, cancels any scheduled reconnect, and
// clears the replay credential. Pending Connect callers fail with
// ErrDisconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.cred = ""
	m.recon.reset()
	conn := m.conn
	m.conn = nil
	wasConnected := m.state == StateConnected
	m.state = StateDisconnected
	m.epoch++
	m.attemptActive = false
	waiters := m.takeWaitersLocked()
	h := m.opts.Handlers
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	settle(waiters, ErrDisconnected)
	if wasConnected && h.Connectivity != nil {
		h.Connectivity(false)
	}
}

func (m *Manager) addWaiterLocked() chan error {
	w := make(chan error, 1)
	m.waiters = append(m.waiters, w)
	return w
}

func (m *Manager) takeWaitersLocked() []chan error {
	waiters := m.waiters
	m.waiters = nil
	return waiters
}

func settle(waiters []chan error, err error) {
	for _, w := range waiters {
		w <- err
	}
}

func (m *Manager) await(ctx context.Context, w chan error) error {
	timer := time.NewTimer(m.opts.ConnectTimeout)
	defer timer.Stop()
	select {
	case err := <-w:
		return err
	case <-timer.C:
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) startAttemptLocked(reconnect bool) {
	m.state = StateConnecting
	m.attemptActive = true
	cred := m.cred
	go m.attempt(cred, reconnect, m.epoch)
}

// attempt runs one dial-and-authenticate cycle. epoch pins the attempt to
// the session generation it was started for: Disconnect bumps the epoch,
// so an attempt that straddles a Disconnect (and possibly a fresh Connect
// with a new credential) abandons itself instead of authenticating with a
// credential that was cleared.
func (m *Manager) attempt(credential string, reconnect bool, epoch uint64) {
	dialCtx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()

	conn, err := m.opts.Transport.Dial(dialCtx, m.opts.ServerURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrConnectTimeout
		} else {
			err = &TransportError{Err: err}
		}
		m.attemptFailed(err, reconnect, epoch)
		return
	}

	m.mu.Lock()
	if m.epoch != epoch || m.state != StateConnecting {
		// Disconnected (or superseded) while dialing.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	ack, err := conn.EmitWithAck(wire.EventAuth, map[string]any{"token": credential}, m.opts.ConnectTimeout)
	if err != nil {
		_ = conn.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			m.attemptFailed(ErrConnectTimeout, reconnect, epoch)
		} else {
			m.attemptFailed(&TransportError{Err: err}, reconnect, epoch)
		}
		return
	}
	var res wire.ResultAck
	if err := wire.Decode(ack, &res); err != nil {
		_ = conn.Close()
		m.attemptFailed(&TransportError{Err: err}, reconnect, epoch)
		return
	}
	if res.Result != wire.ResultSuccess {
		_ = conn.Close()
		m.authRejected(&AuthError{Reason: res.Message}, epoch)
		return
	}

	m.established(conn, epoch)
}

// attemptFailed handles a transient failure of the in-flight attempt:
// initial connects surface the error to their callers, reconnects stay in
// the retry loop.
func (m *Manager) attemptFailed(err error, reconnect bool, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.attemptActive = false
	if m.state != StateConnecting && m.state != StateAuthenticating {
		m.mu.Unlock()
		return
	}
	if reconnect {
		m.state = StateReconnecting
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		logger.Debugf("reconnect attempt failed: %v", err)
		return
	}
	m.state = StateDisconnected
	waiters := m.takeWaitersLocked()
	m.mu.Unlock()
	settle(waiters, err)
}

// authRejected handles a credential the server refused. This is terminal:
// the replay credential is dropped and no retry is scheduled, regardless
// of whether the rejection happened on first connect or during reconnect.
func (m *Manager) authRejected(aerr *AuthError, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		// A stale attempt's verdict must not clear a newer session's
		// credential.
		m.mu.Unlock()
		return
	}
	m.attemptActive = false
	m.state = StateDisconnected
	m.cred = ""
	m.stopTimerLocked()
	m.recon.reset()
	waiters := m.takeWaitersLocked()
	cb := m.opts.OnAuthFailure
	m.mu.Unlock()

	logger.Warnf("credential rejected: %v", aerr)
	settle(waiters, aerr)
	if cb != nil {
		cb(aerr)
	}
}

func (m *Manager) established(conn Conn, attemptEpoch uint64) {
	m.mu.Lock()
	if m.epoch != attemptEpoch || m.state != StateAuthenticating {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.epoch++
	epoch := m.epoch
	m.conn = conn
	m.state = StateConnected
	m.attemptActive = false
	m.recon.reset()
	m.stopTimerLocked()
	waiters := m.takeWaitersLocked()
	h := m.opts.Handlers
	m.mu.Unlock()

	m.wireEvents(conn, epoch)
	conn.OnDisconnect(func(reason string) {
		m.handleDrop(epoch, reason)
	})

	logger.Infof("session established")
	settle(waiters, nil)
	if h.Connectivity != nil {
		h.Connectivity(true)
	}
}

// handleDrop reacts to unexpected transport loss while connected. It is
// never surfaced as an error; the session silently enters reconnection.
func (m *Manager) handleDrop(epoch uint64, reason string) {
	m.mu.Lock()
	if m.epoch != epoch || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.state = StateReconnecting
	m.scheduleReconnectLocked()
	h := m.opts.Handlers
	m.mu.Unlock()

	// Release the dead connection's handlers and pollers. The adapter
	// suppresses the drop callback after Close, so this cannot recurse.
	if conn != nil {
		_ = conn.Close()
	}
	logger.Warnf("transport dropped (%s), reconnecting", reason)
	if h.Connectivity != nil {
		h.Connectivity(false)
	}
}

func (m *Manager) scheduleReconnectLocked() {
	delay := m.recon.nextDelay()
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state != StateReconnecting || m.attemptActive {
			return
		}
		m.timer = nil
		m.startAttemptLocked(true)
	})
}

// current reports whether the epoch still identifies the live connection.
// Stale event callbacks from a replaced connection are ignored.
func (m *Manager) current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

func (m *Manager) wireEvents(conn Conn, epoch uint64) {
	h := m.opts.Handlers

	conn.On(wire.EventMessage, func(payload map[string]any) {
		if !m.current(epoch) {
			return
		}
		var evt wire.MessageEvent
		if err := wire.Decode(payload, &evt); err != nil {
			logger.Warnf("dropping malformed message event: %v", err)
			return
		}
		if h.Envelope != nil {
			h.Envelope(evt)
		}
	})

	conn.On(wire.EventMessageAck, func(payload map[string]any) {
		if !m.current(epoch) {
			return
		}
		var ack wire.SendAck
		if err := wire.Decode(payload, &ack); err != nil {
			logger.Warnf("dropping malformed ack event: %v", err)
			return
		}
		if h.SendAck != nil {
			h.SendAck(ack)
		}
	})

	conn.On(wire.EventMessageFailed, func(payload map[string]any) {
		if !m.current(epoch) {
			return
		}
		var failure wire.SendFailure
		if err := wire.Decode(payload, &failure); err != nil {
			logger.Warnf("dropping malformed failure event: %v", err)
			return
		}
		if h.SendFailed != nil {
			h.SendFailed(failure)
		}
	})

	conn.On(wire.EventTypingStart, func(payload map[string]any) {
		if !m.current(epoch) {
			return
		}
		var evt wire.TypingEvent
		if err := wire.Decode(payload, &evt); err != nil {
			return
		}
		if h.TypingStart != nil {
			h.TypingStart(evt)
		}
	})

	conn.On(wire.EventTypingStop, func(payload map[string]any) {
		if !m.current(epoch) {
			return
		}
		var evt wire.TypingEvent
		if err := wire.Decode(payload, &evt); err != nil {
			return
		}
		if h.TypingStop != nil {
			h.TypingStop(evt)
		}
	})

	conn.On(wire.EventPresence, func(payload map[string]any) {
		if !m.current(epoch) {
			return
		}
		var evt wire.PresenceEvent
		if err := wire.Decode(payload, &evt); err != nil {
			return
		}
		if h.Presence != nil {
			h.Presence(evt)
		}
	})
}

// emit sends a command on the live connection, failing fast when the
// session is not established.
func (m *Manager) emit(event string, v any) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	payload, err := wire.ToPayload(v)
	if err != nil {
		return err
	}
	return conn.Emit(event, payload)
}

// SendMessage transmits an encrypted outbound message.
func (m *Manager) SendMessage(msg wire.OutboundMessage) error {
	return m.emit(wire.EventMessage, msg)
}

// JoinRoom subscribes the session to a conversation.
func (m *Manager) JoinRoom(room wire.RoomRef) error {
	return m.emit(wire.EventJoin, room)
}

// LeaveRoom unsubscribes the session from a conversation.
func (m *Manager) LeaveRoom(room wire.RoomRef) error {
	return m.emit(wire.EventLeave, room)
}

// AckRelay relays delivery/read receipts for remote messages.
func (m *Manager) AckRelay(relay wire.AckRelay) error {
	return m.emit(wire.EventAckRelay, relay)
}

// TypingStart signals that the local user started typing.
func (m *Manager) TypingStart(sig wire.TypingEvent) error {
	return m.emit(wire.EventTypingStart, sig)
}

// TypingStop signals that the local user stopped typing.
func (m *Manager) TypingStop(sig wire.TypingEvent) error {
	return m.emit(wire.EventTypingStop, sig)
}
