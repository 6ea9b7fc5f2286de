package transport

import "fmt"

type StateKind uint8

const (
	StateDisconnected StateKind = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("StateKind(%d)", k)
	}
}

// State is immutable snapshot of connection state.
type State struct {
	Kind StateKind
	// Reconnecting: 1-based attempt number.
	Attempt int
	// Error: cause.
	Err error
	// Error: reconnect attempts exhausted, only explicit Connect starts over.
	Final bool
}

func (s State) String() string {
	switch s.Kind {
	case StateReconnecting:
		return fmt.Sprintf("reconnecting(attempt=%d)", s.Attempt)
	case StateError:
		if s.Final {
			return fmt.Sprintf("error(final, %v)", s.Err)
		}
		return fmt.Sprintf("error(%v)", s.Err)
	default:
		return s.Kind.String()
	}
}
