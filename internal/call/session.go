package call

import "time"

// Session is the single unit of call state. The softphone is single-line:
// at most one non-terminal Session exists at any time, and the Controller
// is its sole owner and mutator.
type Session struct {
	// ID is an opaque identifier assigned at creation.
	ID string

	// Handle identifies the call at the engine boundary (the SIP Call-ID).
	// Assigned before the engine is asked to act on the call.
	Handle string

	// Direction records who originated the call. Immutable.
	Direction Direction

	// RemoteURI is the peer's SIP address. Set at creation, immutable.
	RemoteURI string

	// State is the current position in the call state machine.
	State State

	// InitiatedAt is when the session entered the slot: dial time for
	// outbound calls, INVITE arrival for inbound. Immutable.
	InitiatedAt time.Time

	// StartTime is set on the transition into StateConfirmed.
	StartTime time.Time

	// EndTime is set on the transition into StateDisconnected.
	EndTime time.Time

	// Muted and OnHold are only mutated while the call is established.
	Muted  bool
	OnHold bool

	// RecordingPath is set once recording begins. Write-once.
	RecordingPath string

	// ReceivedDigits accumulates DTMF digits reported by the engine while
	// the call is established.
	ReceivedDigits string

	// HangupCause describes why the call ended (normal, remote hangup,
	// rejected, engine error).
	HangupCause string
}

// Duration returns the confirmed talk time: StartTime to EndTime for a
// finished call, StartTime to now for a live one, zero if never answered.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// Snapshot is a consistent point-in-time view of the call slot, safe to
// serialize without further locking.
type Snapshot struct {
	Active        bool          `json:"active"`
	SessionID     string        `json:"session_id,omitempty"`
	State         State         `json:"state,omitempty"`
	RemoteURI     string        `json:"remote_uri,omitempty"`
	Direction     Direction     `json:"direction,omitempty"`
	Duration      time.Duration `json:"-"`
	DurationSecs  int           `json:"duration_secs"`
	Muted         bool          `json:"muted"`
	OnHold        bool          `json:"on_hold"`
	Registered    bool          `json:"registered"`
	RecordingPath string        `json:"-"`
}
