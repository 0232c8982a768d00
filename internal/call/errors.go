package call

import "errors"

// Typed failures returned by controller operations. The HTTP layer maps
// these to status codes; the controller never panics on a state violation.
var (
	// ErrAlreadyInCall is returned when originating or accepting a call
	// while a non-terminal session occupies the single call slot.
	ErrAlreadyInCall = errors.New("already in a call")

	// ErrNoActiveCall is returned when an operation requires an active
	// session and none exists.
	ErrNoActiveCall = errors.New("no active call")

	// ErrInvalidStateTransition is returned when a session exists but the
	// requested operation is not legal from its current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidDestination is returned when a dial destination cannot be
	// normalized to a routable SIP URI.
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrInvalidDtmf is returned when a DTMF string is empty or contains
	// characters outside {0-9, *, #, A-D}.
	ErrInvalidDtmf = errors.New("invalid dtmf digits")

	// ErrEngineTimeout is returned when the SIP engine does not complete a
	// command within the configured operation timeout.
	ErrEngineTimeout = errors.New("engine timed out")

	// ErrEngineFailure is returned when the SIP engine reports an error
	// executing a command.
	ErrEngineFailure = errors.New("engine failure")
)
