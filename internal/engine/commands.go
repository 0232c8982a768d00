package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/sipdeck/sipdeck/internal/media"
)

// Answer accepts the pending inbound call: it sends the 200 OK with our SDP
// answer on the held INVITE transaction and starts media toward the
// caller's offer.
func (e *Engine) Answer(ctx context.Context, handle string) error {
	dlg := e.dialogs.get(handle)
	if dlg == nil || dlg.role != roleCallee {
		return fmt.Errorf("no pending incoming call for handle %s", handle)
	}

	dlg.mu.Lock()
	if dlg.answered {
		dlg.mu.Unlock()
		return nil
	}
	serverTx := dlg.serverTx
	offer := dlg.offerSDP
	localTag := dlg.localTag
	dlg.mu.Unlock()

	desc, err := media.ParseDescription(offer)
	if err != nil {
		return fmt.Errorf("parsing caller sdp: %w", err)
	}
	pt, err := desc.SelectCodec()
	if err != nil {
		return err
	}

	session, err := media.NewSession("", e.logger)
	if err != nil {
		return fmt.Errorf("allocating rtp session: %w", err)
	}

	answer := media.BuildBody(media.BodyParams{
		Address:   e.localIP,
		Port:      session.Port(),
		SessionID: dlg.sdpSessionID,
		Version:   1,
		Formats:   []int{pt},
	})

	res := sip.NewResponseFromRequest(dlg.inviteReq, 200, "OK", answer)
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	res.AppendHeader(sip.NewHeader("Contact", e.contactURI()))
	addToTag(res, localTag)

	if err := serverTx.Respond(res); err != nil {
		session.Close()
		return fmt.Errorf("sending 200 ok: %w", err)
	}

	dlg.mu.Lock()
	dlg.answered = true
	dlg.media = session
	dlg.mu.Unlock()

	if err := e.startMedia(dlg, offer); err != nil {
		e.logger.Error("media setup failed", "handle", handle, "error", err)
	}

	e.logger.Info("call answered", "handle", handle)
	return nil
}

// Hangup terminates whatever stage the call is at: CANCEL while an outbound
// call rings, 603 Decline for an unanswered inbound call, BYE once the call
// is established. An unknown handle is a no-op.
func (e *Engine) Hangup(ctx context.Context, handle string) error {
	dlg := e.dialogs.remove(handle)
	if dlg == nil {
		return nil
	}
	defer e.closeDialog(dlg)

	dlg.mu.Lock()
	answered := dlg.answered
	role := dlg.role
	inviteReq := dlg.inviteReq
	inviteTx := dlg.inviteTx
	serverTx := dlg.serverTx
	dlg.mu.Unlock()

	switch {
	case !answered && role == roleCaller:
		if cancelReq := buildCancel(inviteReq); cancelReq != nil {
			if err := e.client.WriteRequest(cancelReq); err != nil {
				e.logger.Warn("failed to send cancel", "handle", handle, "error", err)
			}
		}
		if inviteTx != nil {
			inviteTx.Terminate()
		}
		return nil

	case !answered && role == roleCallee:
		res := sip.NewResponseFromRequest(inviteReq, 603, "Decline", nil)
		addToTag(res, dlg.localTag)
		if err := serverTx.Respond(res); err != nil {
			return fmt.Errorf("sending decline: %w", err)
		}
		return nil

	default:
		bye := dlg.newRequest(sip.BYE, e.contactURI())
		tx, err := e.client.TransactionRequest(ctx, bye, sipgo.ClientRequestAddVia)
		if err != nil {
			return fmt.Errorf("sending bye: %w", err)
		}
		res, err := getFinalResponse(ctx, tx)
		tx.Terminate()
		if err != nil {
			return fmt.Errorf("waiting for bye response: %w", err)
		}
		if res.StatusCode != 200 {
			e.logger.Warn("bye rejected",
				"handle", handle, "status", res.StatusCode, "reason", res.Reason)
		}
		return nil
	}
}

// Hold re-offers the stream as sendonly, telling the far end we stopped
// listening.
func (e *Engine) Hold(ctx context.Context, handle string) error {
	return e.reinvite(ctx, handle, true)
}

// Resume re-offers the stream as sendrecv, taking the call off hold.
func (e *Engine) Resume(ctx context.Context, handle string) error {
	return e.reinvite(ctx, handle, false)
}

func (e *Engine) reinvite(ctx context.Context, handle string, hold bool) error {
	dlg := e.dialogs.get(handle)
	if dlg == nil {
		return fmt.Errorf("no active call for handle %s", handle)
	}
	dlg.mu.Lock()
	answered := dlg.answered
	dlg.mu.Unlock()
	if !answered {
		return fmt.Errorf("call %s is not established", handle)
	}

	direction := media.DirSendRecv
	if hold {
		direction = media.DirSendOnly
	}
	sessionID, version := dlg.nextSDPVersion()
	body := media.BuildBody(media.BodyParams{
		Address:   e.localIP,
		Port:      dlg.media.Port(),
		SessionID: sessionID,
		Version:   version,
		Formats:   []int{media.PayloadPCMU, media.PayloadPCMA},
		Direction: direction,
	})

	req := dlg.newRequest(sip.INVITE, e.contactURI())
	req.SetBody(body)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))

	res, ackReq, err := e.sendInDialog(ctx, dlg, req)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("re-invite rejected with %d %s", res.StatusCode, res.Reason)
	}

	ack := buildACKFor2xx(ackReq, res)
	if err := e.client.WriteRequest(ack); err != nil {
		return fmt.Errorf("sending ack: %w", err)
	}

	dlg.media.SetHeld(hold)
	e.logger.Info("call hold state changed", "handle", handle, "held", hold)
	return nil
}

// SetMute toggles outbound audio. Mute is local to the media plane; no
// signaling leaves the endpoint.
func (e *Engine) SetMute(ctx context.Context, handle string, muted bool) error {
	dlg := e.dialogs.get(handle)
	if dlg == nil || dlg.media == nil {
		return fmt.Errorf("no active call for handle %s", handle)
	}
	dlg.media.SetMuted(muted)
	e.logger.Info("mute state changed", "handle", handle, "muted", muted)
	return nil
}

// SendDTMF sends each digit as an INFO request with an application/
// dtmf-relay body, waiting for the far end to acknowledge before the next.
func (e *Engine) SendDTMF(ctx context.Context, handle, digits string) error {
	dlg := e.dialogs.get(handle)
	if dlg == nil {
		return fmt.Errorf("no active call for handle %s", handle)
	}

	for i, digit := range digits {
		req := dlg.newRequest(sip.INFO, e.contactURI())
		req.SetBody(media.FormatDTMFRelay(digit, dtmfDurationMs))
		req.AppendHeader(sip.NewHeader("Content-Type", "application/dtmf-relay"))

		res, _, err := e.sendInDialog(ctx, dlg, req)
		if err != nil {
			return fmt.Errorf("sending dtmf %q: %w", digit, err)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return fmt.Errorf("dtmf %q rejected with %d %s", digit, res.StatusCode, res.Reason)
		}

		// Pause between digits so back-to-back tones stay distinct.
		if i < len(digits)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
	return nil
}

// sendInDialog sends an in-dialog request and waits for the final response,
// answering a single digest challenge along the way. It returns the final
// response together with the request that produced it (needed for ACK).
func (e *Engine) sendInDialog(ctx context.Context, dlg *dialog, req *sip.Request) (*sip.Response, *sip.Request, error) {
	tx, err := e.client.TransactionRequest(ctx, req, sipgo.ClientRequestAddVia)
	if err != nil {
		return nil, nil, fmt.Errorf("sending %s: %w", req.Method, err)
	}
	res, err := getFinalResponse(ctx, tx)
	tx.Terminate()
	if err != nil {
		return nil, nil, fmt.Errorf("waiting for %s response: %w", req.Method, err)
	}

	if res.StatusCode == 401 || res.StatusCode == 407 {
		authReq, err := e.authorize(req, res, req.Recipient.String())
		if err != nil {
			return nil, nil, err
		}
		authTx, err := e.client.TransactionRequest(ctx, authReq,
			sipgo.ClientRequestIncreaseCSEQ,
			sipgo.ClientRequestAddVia,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("sending authenticated %s: %w", req.Method, err)
		}
		res, err = getFinalResponse(ctx, authTx)
		authTx.Terminate()
		if err != nil {
			return nil, nil, fmt.Errorf("waiting for authenticated %s response: %w", req.Method, err)
		}
		if cseq := authReq.CSeq(); cseq != nil {
			dlg.mu.Lock()
			dlg.cseq = cseq.SeqNo
			dlg.mu.Unlock()
		}
		return res, authReq, nil
	}
	return res, req, nil
}

// addToTag sets the local tag on a UAS response if the To header does not
// carry one yet.
func addToTag(res *sip.Response, tag string) {
	to := res.To()
	if to == nil {
		return
	}
	if _, ok := to.Params.Get("tag"); !ok {
		to.Params.Add("tag", tag)
	}
}
