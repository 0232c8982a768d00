package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine is the command side of the SIP engine boundary. The controller
// issues commands against the handle it assigned to the session; the engine
// reports progress back through the event methods (OnIncoming, OnProgress,
// OnConfirmed, OnDisconnected, OnDTMF, OnRecording, OnRegistration).
//
// None of these are called while the controller lock is held: the in-memory
// transition is committed first, then the engine is asked to act.
type Engine interface {
	Dial(ctx context.Context, handle, uri string) error
	Answer(ctx context.Context, handle string) error
	Hangup(ctx context.Context, handle string) error
	Hold(ctx context.Context, handle string) error
	Resume(ctx context.Context, handle string) error
	SetMute(ctx context.Context, handle string, muted bool) error
	SendDTMF(ctx context.Context, handle, digits string) error
}

// defaultOpTimeout bounds how long a control operation waits on the engine.
const defaultOpTimeout = 10 * time.Second

// Options configures a Controller.
type Options struct {
	// Domain completes bare destinations ("1002") into sip:1002@Domain.
	Domain string

	// OpTimeout bounds each engine command. Zero means a 10s default.
	OpTimeout time.Duration

	// OnTerminated is invoked exactly once per session, outside the
	// controller lock, after the disconnected transition is committed.
	OnTerminated func(*Session)

	Logger *slog.Logger
}

// Controller owns the single call slot and is the sole mutator of call
// state. It serializes HTTP-triggered commands and engine events under one
// mutex, holding it only for in-memory transitions; engine I/O always
// happens with the lock released and the state already reflecting the
// pending operation.
type Controller struct {
	engine       Engine
	domain       string
	opTimeout    time.Duration
	onTerminated func(*Session)
	logger       *slog.Logger
	now          func() time.Time

	mu         sync.Mutex
	session    *Session
	registered bool
	regCause   string
}

// NewController creates the call controller. One instance exists per
// process, constructed at startup.
func NewController(engine Engine, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Controller{
		engine:       engine,
		domain:       opts.Domain,
		opTimeout:    timeout,
		onTerminated: opts.OnTerminated,
		logger:       logger.With("subsystem", "call-controller"),
		now:          time.Now,
	}
}

// Dial originates an outbound call. The session is created in StateCalling
// before the engine is asked to send the INVITE, so a near-simultaneous
// incoming call is correctly rejected as busy. Returns the session ID.
func (c *Controller) Dial(ctx context.Context, destination string) (string, error) {
	uri, err := c.normalizeDestination(destination)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.active() != nil {
		c.mu.Unlock()
		return "", ErrAlreadyInCall
	}
	sess := &Session{
		ID:          uuid.NewString(),
		Handle:      uuid.NewString(),
		Direction:   DirectionOutgoing,
		RemoteURI:   uri,
		State:       StateCalling,
		InitiatedAt: c.now(),
	}
	c.session = sess
	id, handle := sess.ID, sess.Handle
	c.mu.Unlock()

	c.logger.Info("dialing", "session_id", id, "uri", uri)

	dctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.engine.Dial(dctx, handle, uri); err != nil {
		c.abort(handle, "dial failed")
		return "", engineErr("dial", err)
	}
	return id, nil
}

// Answer accepts the waiting incoming call. Legal from StateIncoming and
// from StateEarly when the session is inbound (our own ringing response
// moves it to early). StartTime is set on the transition into confirmed.
func (c *Controller) Answer(ctx context.Context) error {
	c.mu.Lock()
	sess := c.active()
	if sess == nil {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	answerable := sess.Direction == DirectionIncoming &&
		(sess.State == StateIncoming || sess.State == StateEarly)
	if !answerable {
		c.mu.Unlock()
		return ErrInvalidStateTransition
	}
	sess.State = StateConfirmed
	sess.StartTime = c.now()
	handle := sess.Handle
	c.mu.Unlock()

	actx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.engine.Answer(actx, handle); err != nil {
		c.abort(handle, "answer failed")
		return engineErr("answer", err)
	}
	c.logger.Info("call answered", "session_id", sess.ID)
	return nil
}

// Hangup terminates the active call. Idempotent: hanging up a terminated or
// absent session is a successful no-op and never produces a second
// termination notification.
func (c *Controller) Hangup(ctx context.Context) error {
	c.mu.Lock()
	sess := c.active()
	if sess == nil {
		c.mu.Unlock()
		return nil
	}
	terminated := c.disconnectLocked("local hangup")
	c.mu.Unlock()

	hctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.engine.Hangup(hctx, terminated.Handle); err != nil {
		// Teardown is already committed; the engine error is not the
		// caller's problem.
		c.logger.Warn("engine hangup failed",
			"session_id", terminated.ID, "error", err)
	}
	c.notifyTerminated(terminated)
	return nil
}

// Hold places the confirmed call on hold.
func (c *Controller) Hold(ctx context.Context) error {
	return c.holdResume(ctx, true)
}

// Resume takes the held call off hold.
func (c *Controller) Resume(ctx context.Context) error {
	return c.holdResume(ctx, false)
}

func (c *Controller) holdResume(ctx context.Context, hold bool) error {
	required, next := StateConfirmed, StateOnHold
	op := "hold"
	if !hold {
		required, next = StateOnHold, StateConfirmed
		op = "resume"
	}

	c.mu.Lock()
	sess := c.active()
	if sess == nil {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	if sess.State != required {
		c.mu.Unlock()
		return ErrInvalidStateTransition
	}
	sess.State = next
	sess.OnHold = hold
	handle := sess.Handle
	c.mu.Unlock()

	hctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	var err error
	if hold {
		err = c.engine.Hold(hctx, handle)
	} else {
		err = c.engine.Resume(hctx, handle)
	}
	if err != nil {
		// A failed re-INVITE leaves the dialog in an unknown condition;
		// tear the call down rather than leaving the session stuck.
		c.abort(handle, op+" failed")
		return engineErr(op, err)
	}
	c.logger.Info("call "+op, "session_id", sess.ID)
	return nil
}

// Mute mutes the microphone stream. Permitted while the call is established
// (confirmed or on hold); the call state itself does not change.
func (c *Controller) Mute(ctx context.Context) error {
	return c.setMute(ctx, true)
}

// Unmute restores the microphone stream.
func (c *Controller) Unmute(ctx context.Context) error {
	return c.setMute(ctx, false)
}

func (c *Controller) setMute(ctx context.Context, muted bool) error {
	c.mu.Lock()
	sess := c.active()
	if sess == nil || !sess.State.Established() {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	prev := sess.Muted
	sess.Muted = muted
	handle := sess.Handle
	c.mu.Unlock()

	mctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.engine.SetMute(mctx, handle, muted); err != nil {
		// Mute failure does not endanger the dialog; roll the flag back.
		c.mu.Lock()
		if s := c.sessionFor(handle); s != nil {
			s.Muted = prev
		}
		c.mu.Unlock()
		return engineErr("mute", err)
	}
	return nil
}

// SendDTMF sends touch-tone digits to the far end. Permitted only while the
// call is confirmed; digits must be drawn from {0-9, *, #, A-D}.
func (c *Controller) SendDTMF(ctx context.Context, digits string) error {
	normalized, err := normalizeDTMF(digits)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sess := c.active()
	if sess == nil {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	if sess.State != StateConfirmed {
		c.mu.Unlock()
		return ErrInvalidStateTransition
	}
	handle := sess.Handle
	c.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.engine.SendDTMF(dctx, handle, normalized); err != nil {
		return engineErr("dtmf", err)
	}
	return nil
}

// Status returns a consistent point-in-time snapshot of the call slot.
// Safe to call concurrently with any mutating operation; it never blocks
// longer than the (state-only) lock hold of a transition.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Registered: c.registered}
	sess := c.active()
	if sess == nil {
		return snap
	}
	d := sess.Duration(c.now())
	snap.Active = true
	snap.SessionID = sess.ID
	snap.State = sess.State
	snap.RemoteURI = sess.RemoteURI
	snap.Direction = sess.Direction
	snap.Duration = d
	snap.DurationSecs = int(d / time.Second)
	snap.Muted = sess.Muted
	snap.OnHold = sess.OnHold
	snap.RecordingPath = sess.RecordingPath
	return snap
}

// ActiveCall reports whether the slot is occupied and, if so, the state of
// the call in it.
func (c *Controller) ActiveCall() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.active()
	if sess == nil {
		return false, ""
	}
	return true, string(sess.State)
}

// Registered reports the last registration state pushed by the engine.
func (c *Controller) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// OnIncoming handles an engine "incoming call" event. It returns false when
// the line is busy, in which case the engine must answer 486 rather than
// overwrite the active session.
func (c *Controller) OnIncoming(handle, remoteURI string) bool {
	c.mu.Lock()
	if c.active() != nil {
		c.mu.Unlock()
		c.logger.Info("rejecting incoming call, line busy",
			"remote_uri", remoteURI)
		return false
	}
	sess := &Session{
		ID:          uuid.NewString(),
		Handle:      handle,
		Direction:   DirectionIncoming,
		RemoteURI:   remoteURI,
		State:       StateIncoming,
		InitiatedAt: c.now(),
	}
	c.session = sess
	c.mu.Unlock()

	c.logger.Info("incoming call",
		"session_id", sess.ID, "remote_uri", remoteURI)
	return true
}

// OnProgress handles provisional signaling (ringing) from the engine.
func (c *Controller) OnProgress(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sessionFor(handle)
	if sess == nil || !sess.State.CanTransitionTo(StateEarly) {
		c.discardEvent("progress", handle)
		return
	}
	sess.State = StateEarly
}

// OnConfirmed handles the engine's "connected" event for an outbound call.
func (c *Controller) OnConfirmed(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sessionFor(handle)
	if sess == nil || !sess.State.CanTransitionTo(StateConfirmed) {
		c.discardEvent("confirmed", handle)
		return
	}
	sess.State = StateConfirmed
	if sess.StartTime.IsZero() {
		sess.StartTime = c.now()
	}
	c.logger.Info("call confirmed", "session_id", sess.ID)
}

// OnDisconnected handles call teardown reported by the engine: remote
// hangup, rejection, or network failure. Duplicate disconnect events for an
// already-cleared session are discarded.
func (c *Controller) OnDisconnected(handle, cause string) {
	c.mu.Lock()
	sess := c.sessionFor(handle)
	if sess == nil {
		c.mu.Unlock()
		c.discardEvent("disconnected", handle)
		return
	}
	terminated := c.disconnectLocked(cause)
	c.mu.Unlock()

	c.notifyTerminated(terminated)
}

// OnDTMF records a digit received from the far end. Digits outside an
// established call are discarded.
func (c *Controller) OnDTMF(handle string, digit rune) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sessionFor(handle)
	if sess == nil || !sess.State.Established() {
		c.discardEvent("dtmf", handle)
		return
	}
	sess.ReceivedDigits += string(digit)
}

// OnRecording records the path of the call recording. Write-once.
func (c *Controller) OnRecording(handle, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sessionFor(handle)
	if sess == nil || sess.RecordingPath != "" {
		return
	}
	sess.RecordingPath = path
}

// OnRegistration tracks the engine's registration state for status and
// health reporting.
func (c *Controller) OnRegistration(registered bool, cause string) {
	c.mu.Lock()
	c.registered = registered
	c.regCause = cause
	c.mu.Unlock()

	if registered {
		c.logger.Info("sip registration active")
	} else {
		c.logger.Warn("sip registration lost", "cause", cause)
	}
}

// active returns the live session, or nil if the slot is free. Callers must
// hold c.mu.
func (c *Controller) active() *Session {
	if c.session == nil || c.session.State.IsTerminal() {
		return nil
	}
	return c.session
}

// sessionFor returns the live session matching an engine handle. Callers
// must hold c.mu.
func (c *Controller) sessionFor(handle string) *Session {
	sess := c.active()
	if sess == nil || sess.Handle != handle {
		return nil
	}
	return sess
}

// disconnectLocked commits the terminal transition and frees the call slot.
// The returned session is handed to exactly one caller, which must invoke
// notifyTerminated outside the lock. Callers must hold c.mu.
func (c *Controller) disconnectLocked(cause string) *Session {
	sess := c.session
	sess.State = StateDisconnected
	sess.EndTime = c.now()
	sess.HangupCause = cause
	c.session = nil

	c.logger.Info("call disconnected",
		"session_id", sess.ID,
		"remote_uri", sess.RemoteURI,
		"direction", sess.Direction,
		"cause", cause,
		"duration_ms", sess.Duration(sess.EndTime).Milliseconds(),
	)
	return sess
}

// abort force-disconnects after an engine command failed mid-call.
func (c *Controller) abort(handle, cause string) {
	c.mu.Lock()
	if c.sessionFor(handle) == nil {
		c.mu.Unlock()
		return
	}
	terminated := c.disconnectLocked(cause)
	c.mu.Unlock()

	c.notifyTerminated(terminated)
}

func (c *Controller) notifyTerminated(sess *Session) {
	if c.onTerminated != nil {
		c.onTerminated(sess)
	}
}

func (c *Controller) discardEvent(event, handle string) {
	// The engine may emit spurious or duplicate events (two disconnects
	// for one call); they are logged and dropped, never surfaced.
	c.logger.Debug("discarding engine event", "event", event, "handle", handle)
}

// normalizeDestination turns a dial string into a routable SIP URI.
// Accepts full sip:/sips: URIs, user@host pairs, and bare numbers or user
// names which are completed with the configured domain.
func (c *Controller) normalizeDestination(dest string) (string, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", ErrInvalidDestination
	}

	if strings.HasPrefix(dest, "sip:") || strings.HasPrefix(dest, "sips:") {
		if !strings.Contains(dest, "@") {
			return "", ErrInvalidDestination
		}
		return dest, nil
	}
	if strings.Contains(dest, "@") {
		return "sip:" + dest, nil
	}

	for _, r := range dest {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '+' || r == '.' || r == '-' || r == '_' || r == '*' || r == '#':
		default:
			return "", ErrInvalidDestination
		}
	}
	if c.domain == "" {
		return "", ErrInvalidDestination
	}
	return fmt.Sprintf("sip:%s@%s", dest, c.domain), nil
}

// normalizeDTMF validates a DTMF sequence and upper-cases the a-d digits.
func normalizeDTMF(digits string) (string, error) {
	if digits == "" {
		return "", ErrInvalidDtmf
	}
	var b strings.Builder
	for _, r := range digits {
		switch {
		case r >= '0' && r <= '9', r == '*', r == '#', r >= 'A' && r <= 'D':
			b.WriteRune(r)
		case r >= 'a' && r <= 'd':
			b.WriteRune(r - ('a' - 'A'))
		default:
			return "", ErrInvalidDtmf
		}
	}
	return b.String(), nil
}

// engineErr maps an engine command failure to the typed error taxonomy.
func engineErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrEngineTimeout, op)
	}
	return fmt.Errorf("%w: %s: %s", ErrEngineFailure, op, err)
}
