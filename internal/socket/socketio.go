// Package socket adapts the Socket.IO client to the connection layer's
// Transport interface. Automatic reconnection is disabled on the
// underlying client; the connection manager owns the retry loop so that
// credential replay and backoff stay in one place.
package socket

import (
	"context"
	"fmt"
	"sync"
	"time"

	sio "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/connection"
	"github.com/ZRosserMcIntosh/railgun-sub001/pkg/logger"
)

// DefaultPath is the Socket.IO endpoint path on the chat server.
const DefaultPath = "/v1/stream"

// Transport dials Socket.IO connections.
type Transport struct {
	// Path overrides DefaultPath when set.
	Path string
}

// Dial opens a Socket.IO connection and blocks until the transport
// handshake completes or ctx is done. Authentication is a separate step
// driven by the caller.
func (t *Transport) Dial(ctx context.Context, serverURL string) (connection.Conn, error) {
	path := t.Path
	if path == "" {
		path = DefaultPath
	}

	opts := sio.DefaultOptions()
	opts.SetPath(path)
	opts.SetTransports(types.NewSet(sio.Polling, sio.WebSocket))
	// The manager replays credentials and schedules retries itself.
	opts.SetReconnection(false)

	sock, err := sio.Connect(serverURL, opts)
	if err != nil {
		return nil, fmt.Errorf("socket.io connect: %w", err)
	}

	conn := &Conn{sock: sock}

	sock.On(types.EventName("connect"), func(...any) {
		logger.Debugf("socket.io connected, id=%s", sock.Id())
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			conn.setDialErr(fmt.Errorf("socket.io connect error: %v", args[0]))
		}
	})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		conn.dropped(reason)
	})

	if err := conn.waitConnected(ctx); err != nil {
		sock.Disconnect()
		return nil, err
	}
	return conn, nil
}

// Conn is one live Socket.IO connection. Event handlers run on the
// socket's event goroutine in arrival order.
type Conn struct {
	sock *sio.Socket

	mu      sync.Mutex
	onDrop  func(reason string)
	dialErr error
	closed  bool
}

func (c *Conn) setDialErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialErr == nil {
		c.dialErr = err
	}
}

// waitConnected polls until the handshake completes. The Socket.IO client
// exposes no completion channel, so this follows the poll-until-connected
// shape with a short interval.
func (c *Conn) waitConnected(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.sock.Connected() {
			return nil
		}
		c.mu.Lock()
		err := c.dialErr
		c.mu.Unlock()
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// On registers a handler for a named server event. Payloads that are not
// object-shaped are delivered as nil maps.
func (c *Conn) On(event string, fn func(payload map[string]any)) {
	c.sock.On(types.EventName(event), func(args ...any) {
		var data map[string]any
		if len(args) > 0 {
			if m, ok := args[0].(map[string]any); ok {
				data = m
			}
		}
		fn(data)
	})
}

// OnDisconnect registers a handler for transport loss. It does not fire
// on explicit Close.
func (c *Conn) OnDisconnect(fn func(reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDrop = fn
}

func (c *Conn) dropped(reason string) {
	c.mu.Lock()
	fn := c.onDrop
	closed := c.closed
	c.mu.Unlock()
	if closed || fn == nil {
		return
	}
	fn(reason)
}

// Emit sends an event without waiting for a response.
func (c *Conn) Emit(event string, payload map[string]any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("connection closed")
	}
	c.sock.Emit(event, payload)
	return nil
}

// EmitWithAck sends an event and waits for the server's ack payload.
func (c *Conn) EmitWithAck(event string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("connection closed")
	}

	resultCh := make(chan map[string]any, 1)
	errCh := make(chan error, 1)

	c.sock.Emit(event, payload, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		if len(args) == 0 {
			resultCh <- nil
			return
		}
		if m, ok := args[0].(map[string]any); ok {
			resultCh <- m
			return
		}
		resultCh <- nil
	})

	select {
	case res := <-resultCh:
		return res, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("ack timeout for %q: %w", event, context.DeadlineExceeded)
	}
}

// Close tears the connection down. The drop handler is suppressed so an
// explicit close never looks like transport loss.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.sock.Disconnect()
	return nil
}
