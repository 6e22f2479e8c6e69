package wsconn

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAwaitingPong
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingPong:
		return "awaiting_pong"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// transitions lists every allowed edge. Moving to StateDisconnected is
// always allowed and handled separately since it is the shutdown edge.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateReconnecting},
	StateConnected:    {StateAwaitingPong, StateReconnecting},
	StateAwaitingPong: {StateConnected, StateReconnecting},
	StateReconnecting: {StateConnecting},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	if to == StateDisconnected {
		return from != StateDisconnected
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
