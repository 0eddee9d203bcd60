package connection

// State is the connection lifecycle state.
type State int32

const (
	// StateDisconnected means no session exists and none is being built.
	StateDisconnected State = iota
	// StateConnecting means a transport handshake is in flight.
	StateConnecting
	// StateAuthenticating means the transport is up and the credential is
	// awaiting server confirmation.
	StateAuthenticating
	// StateConnected means the server has confirmed the session.
	StateConnected
	// StateReconnecting means the transport dropped unexpectedly and
	// automatic recovery is scheduled.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
