package websocket

// State is a connection's externally visible lifecycle phase: Connecting is
// the only start state, Closed is the only terminal one, and transitions
// are monotonic (never backward).
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IState refines State with the individual handshake steps, so their
// ordering can be asserted on every transition.
type IState int

const (
	iStateUserInit IState = iota
	iStateTransportInit
	iStateServerReadRequest
	iStateServerProcessRequest
	iStateServerWriteResponse
	iStateClientWriteRequest
	iStateClientReadResponse
	iStateProcessConnection // Open
	iStateClosing
	iStateClosed
)

func (s IState) String() string {
	switch s {
	case iStateUserInit:
		return "user-init"
	case iStateTransportInit:
		return "transport-init"
	case iStateServerReadRequest:
		return "server-read-request"
	case iStateServerProcessRequest:
		return "server-process-request"
	case iStateServerWriteResponse:
		return "server-write-response"
	case iStateClientWriteRequest:
		return "client-write-request"
	case iStateClientReadResponse:
		return "client-read-response"
	case iStateProcessConnection:
		return "open"
	case iStateClosing:
		return "closing"
	case iStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// external reports the [State] an [IState] maps to.
func (s IState) external() State {
	switch {
	case s == iStateClosed:
		return StateClosed
	case s == iStateClosing:
		return StateClosing
	case s == iStateProcessConnection:
		return StateOpen
	default:
		return StateConnecting
	}
}

// transition is the connection's atomic check-and-swap state primitive: it
// asserts the connection is in one of from before moving to to, returning
// errInvalidState otherwise. Callers always hold c.stateMu.
func (c *Connection) transition(to IState, from ...IState) *Error {
	for _, f := range from {
		if c.istate == f {
			c.istate = to
			return nil
		}
	}
	return errInvalidState("invalid transition from " + c.istate.String() + " to " + to.String())
}
