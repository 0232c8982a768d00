package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emiago/sipgo"

	"github.com/sipdeck/sipdeck/internal/config"
)

// Events is the callback surface the engine reports into. Incoming calls,
// state progress, teardown, received digits, and registration changes all
// flow through here. Callbacks are invoked from engine goroutines and must
// not block for long.
type Events interface {
	// OnIncoming announces a new inbound call. Returning false tells the
	// engine to reject it busy.
	OnIncoming(handle, remoteURI string) bool
	OnProgress(handle string)
	OnConfirmed(handle string)
	OnDisconnected(handle, cause string)
	OnDTMF(handle string, digit rune)
	OnRecording(handle, path string)
	OnRegistration(registered bool, cause string)
}

const (
	// ringTimeout bounds how long an outbound call may ring before the
	// engine gives up and cancels it.
	ringTimeout = 60 * time.Second

	// dtmfDurationMs is the signal duration reported in INFO DTMF bodies.
	dtmfDurationMs = 250

	defaultRegisterExpiry = 300
)

// Engine is the SIP user agent: it registers with the configured registrar,
// originates and accepts calls, and drives the RTP media session for the
// single active call. Call-state policy lives above it; the engine only
// executes commands against handles and reports what happens on the wire.
type Engine struct {
	cfg    config.SIP
	logger *slog.Logger

	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client

	events  Events
	dialogs *dialogSet

	recordingDir string
	autoRecord   bool

	localIP string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the SIP engine. Events must be attached with SetEvents before
// Start; the engine and its consumer reference each other, so construction
// happens in two steps.
func New(cfg config.SIP, recordingDir string, autoRecord bool, logger *slog.Logger) (*Engine, error) {
	l := logger.With("component", "sip")

	localIP := cfg.LocalIP
	if localIP == "" {
		ip, err := discoverLocalIP(cfg.Domain)
		if err != nil {
			return nil, fmt.Errorf("discovering local ip: %w", err)
		}
		localIP = ip
	}

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("sipdeck"),
		sipgo.WithUserAgentHostname(localIP),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}

	srv, err := sipgo.NewServer(ua, sipgo.WithServerLogger(l))
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("creating sip server: %w", err)
	}

	client, err := sipgo.NewClient(ua, sipgo.WithClientLogger(l))
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating sip client: %w", err)
	}

	e := &Engine{
		cfg:          cfg,
		logger:       l,
		ua:           ua,
		srv:          srv,
		client:       client,
		dialogs:      newDialogSet(),
		recordingDir: recordingDir,
		autoRecord:   autoRecord,
		localIP:      localIP,
	}
	e.registerHandlers()
	return e, nil
}

// SetEvents attaches the event consumer. Must be called before Start.
func (e *Engine) SetEvents(events Events) {
	e.events = events
}

func (e *Engine) registerHandlers() {
	e.srv.OnInvite(e.handleInvite)
	e.srv.OnAck(e.handleAck)
	e.srv.OnBye(e.handleBye)
	e.srv.OnInfo(e.handleInfo)
	e.srv.OnOptions(e.handleOptions)
}

// Start brings up the SIP listeners and the registration loop. It returns
// once the listeners are launched; registration proceeds in the background
// and is reported through OnRegistration.
func (e *Engine) Start(ctx context.Context) error {
	if e.events == nil {
		return fmt.Errorf("engine started without events attached")
	}

	ctx, e.cancel = context.WithCancel(ctx)

	udpAddr := fmt.Sprintf("0.0.0.0:%d", e.cfg.Port)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logger.Info("sip udp listener starting", "addr", udpAddr)
		if err := e.srv.ListenAndServe(ctx, "udp", udpAddr); err != nil {
			e.logger.Error("sip udp listener stopped", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logger.Info("sip tcp listener starting", "addr", udpAddr)
		if err := e.srv.ListenAndServe(ctx, "tcp", udpAddr); err != nil {
			e.logger.Error("sip tcp listener stopped", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runRegistration(ctx)
	}()

	return nil
}

// Stop tears down the active dialog, un-registers, and shuts the stack down.
func (e *Engine) Stop() {
	e.logger.Info("stopping sip engine")

	for _, dlg := range e.dialogs.all() {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.Hangup(hctx, dlg.handle); err != nil {
			e.logger.Warn("hangup during shutdown failed",
				"handle", dlg.handle, "error", err)
		}
		cancel()
	}

	// Best-effort un-register before the transports go away.
	unregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := e.sendRegister(unregCtx, 0); err != nil {
		e.logger.Warn("un-register failed", "error", err)
	}
	cancel()

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.client.Close()
	e.srv.Close()
	e.ua.Close()
	e.logger.Info("sip engine stopped")
}

// contactURI is the Contact header value advertised in REGISTER, INVITE,
// and in-dialog requests.
func (e *Engine) contactURI() string {
	return fmt.Sprintf("<sip:%s@%s:%d>", e.cfg.Username, e.localIP, e.cfg.Port)
}

// discoverLocalIP finds the local address used to reach the registrar.
func discoverLocalIP(domain string) (string, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(domain, "5060"))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

// disconnectCause maps a SIP final failure response to the hangup cause
// recorded in call history.
func disconnectCause(code int, reason string) string {
	switch code {
	case 486, 600:
		return "busy"
	case 603:
		return "declined"
	case 487:
		return "cancelled"
	case 480:
		return "unavailable"
	case 404:
		return "not found"
	case 408:
		return "timeout"
	default:
		return fmt.Sprintf("rejected (%d %s)", code, reason)
	}
}
