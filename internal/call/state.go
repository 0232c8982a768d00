package call

// State represents the lifecycle state of a call session.
type State string

const (
	// StateNull means no session exists yet (the idle slot).
	StateNull State = "null"
	// StateCalling means an outbound INVITE has been issued.
	StateCalling State = "calling"
	// StateIncoming means an inbound call is waiting to be answered.
	StateIncoming State = "incoming"
	// StateEarly means the far end is ringing (provisional signaling).
	StateEarly State = "early"
	// StateConfirmed means the call is established with media flowing.
	StateConfirmed State = "confirmed"
	// StateOnHold means the call is established but placed on hold locally.
	StateOnHold State = "on_hold"
	// StateDisconnected is the terminal state.
	StateDisconnected State = "disconnected"
)

// validTransitions is the call state machine. A transition not listed here
// is illegal and must be rejected (commands) or discarded (engine events).
var validTransitions = map[State][]State{
	StateNull:         {StateCalling, StateIncoming},
	StateCalling:      {StateEarly, StateConfirmed, StateDisconnected},
	StateIncoming:     {StateEarly, StateConfirmed, StateDisconnected},
	StateEarly:        {StateConfirmed, StateDisconnected},
	StateConfirmed:    {StateOnHold, StateDisconnected},
	StateOnHold:       {StateConfirmed, StateDisconnected},
	StateDisconnected: {},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is the final state of the machine.
func (s State) IsTerminal() bool {
	return s == StateDisconnected
}

// Established reports whether the call has been answered and not yet torn
// down. Mute and received-DTMF collection are only meaningful here.
func (s State) Established() bool {
	return s == StateConfirmed || s == StateOnHold
}

func (s State) String() string {
	return string(s)
}

// Direction indicates who originated the call.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)
