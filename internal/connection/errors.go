package connection

import (
	"errors"
	"fmt"
)

// ErrConnectTimeout is returned when a connect attempt exceeds its ceiling
// before the server confirms the session.
var ErrConnectTimeout = errors.New("connect timeout")

// ErrNotConnected is returned by commands issued while the manager is not
// connected. Commands never queue here; outbound buffering is the sending
// pipeline's decision.
var ErrNotConnected = errors.New("not connected")

// ErrDisconnected is returned to connect waiters when the manager is
// explicitly disconnected while their attempt is in flight.
var ErrDisconnected = errors.New("disconnected by request")

// AuthError reports a credential the server rejected. It is fatal for the
// current credential: the manager will not retry with it.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return "authentication rejected"
	}
	return fmt.Sprintf("authentication rejected: %s", e.Reason)
}

// TransportError wraps a transport-level failure during connection
// establishment. While connected, transport failures are never surfaced;
// they silently trigger reconnection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
