package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/sipdeck/sipdeck/internal/media"
)

// Dial originates an outbound call to uri under the given handle. It
// returns once the INVITE is handed to the transport; ringing, answer, and
// failure arrive later through the event callbacks. The handle doubles as
// the SIP Call-ID so wire traces correlate directly with call sessions.
func (e *Engine) Dial(ctx context.Context, handle, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var recipient sip.Uri
	if err := sip.ParseUri(uri, &recipient); err != nil {
		return fmt.Errorf("parsing destination uri: %w", err)
	}

	session, err := media.NewSession("", e.logger)
	if err != nil {
		return fmt.Errorf("allocating rtp session: %w", err)
	}

	sessionID := time.Now().Unix()
	offer := media.BuildBody(media.BodyParams{
		Address:   e.localIP,
		Port:      session.Port(),
		SessionID: sessionID,
		Version:   1,
		Formats:   []int{media.PayloadPCMU, media.PayloadPCMA},
	})

	req := sip.NewRequest(sip.INVITE, recipient)
	req.SetTransport(strings.ToUpper(e.cfg.Transport))
	req.SetBody(offer)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.AppendHeader(sip.NewHeader("Call-ID", handle))

	localTag := sip.GenerateTagN(16)
	from := &sip.FromHeader{
		Address: sip.Uri{Scheme: "sip", User: e.cfg.Username, Host: e.cfg.Domain},
	}
	from.Params.Add("tag", localTag)
	req.AppendHeader(from)
	req.AppendHeader(sip.NewHeader("Contact", e.contactURI()))

	e.logger.Info("sending invite", "handle", handle, "uri", uri)

	// The ring window outlives the command context: the INVITE transaction
	// keeps running until the far end answers, rejects, or the timeout
	// cancels it.
	ringCtx, cancelRing := context.WithTimeout(context.Background(), ringTimeout)

	tx, err := e.client.TransactionRequest(ringCtx, req, sipgo.ClientRequestBuild)
	if err != nil {
		cancelRing()
		session.Close()
		return fmt.Errorf("sending invite: %w", err)
	}

	dlg := &dialog{
		handle:       handle,
		role:         roleCaller,
		localTag:     localTag,
		localURI:     from.Address,
		remoteURI:    recipient,
		remoteTarget: recipient,
		transport:    strings.ToUpper(e.cfg.Transport),
		inviteReq:    req,
		inviteTx:     tx,
		media:        session,
		sdpSessionID: sessionID,
		sdpVersion:   1,
	}
	if cseq := req.CSeq(); cseq != nil {
		dlg.cseq = cseq.SeqNo
	}
	e.dialogs.add(dlg)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancelRing()
		e.watchInvite(ringCtx, dlg, tx, req)
	}()
	return nil
}

// watchInvite collects responses to an outbound INVITE: provisional ringing
// is surfaced as progress, a digest challenge re-sends with credentials, a
// 2xx is ACKed and starts media, and any final failure tears the call down.
func (e *Engine) watchInvite(ctx context.Context, dlg *dialog, tx sip.ClientTransaction, req *sip.Request) {
	authAttempted := false

	for {
		var res *sip.Response
		select {
		case <-ctx.Done():
			// Ring timeout. Cancel the pending INVITE so the far end
			// stops ringing.
			if cancelReq := buildCancel(req); cancelReq != nil {
				if err := e.client.WriteRequest(cancelReq); err != nil {
					e.logger.Warn("failed to send cancel", "handle", dlg.handle, "error", err)
				}
			}
			tx.Terminate()
			e.finish(dlg.handle, "no answer")
			return
		case <-tx.Done():
			tx.Terminate()
			cause := "transport failure"
			if err := tx.Err(); err != nil {
				e.logger.Warn("invite transaction failed", "handle", dlg.handle, "error", err)
			}
			e.finish(dlg.handle, cause)
			return
		case res = <-tx.Responses():
		}

		e.logger.Debug("invite response",
			"handle", dlg.handle,
			"status", res.StatusCode,
			"reason", res.Reason,
		)

		switch {
		case res.StatusCode == 100:
			continue

		case res.StatusCode < 200:
			e.events.OnProgress(dlg.handle)

		case res.StatusCode == 401 || res.StatusCode == 407:
			tx.Terminate()
			if authAttempted {
				e.finish(dlg.handle, "authentication failed")
				return
			}
			authAttempted = true

			authReq, err := e.authorize(req, res, req.Recipient.String())
			if err != nil {
				e.logger.Error("invite auth failed", "handle", dlg.handle, "error", err)
				e.finish(dlg.handle, "authentication failed")
				return
			}
			authTx, err := e.client.TransactionRequest(ctx, authReq,
				sipgo.ClientRequestIncreaseCSEQ,
				sipgo.ClientRequestAddVia,
			)
			if err != nil {
				e.logger.Error("sending authenticated invite failed",
					"handle", dlg.handle, "error", err)
				e.finish(dlg.handle, "authentication failed")
				return
			}
			req, tx = authReq, authTx
			dlg.mu.Lock()
			dlg.inviteReq = authReq
			dlg.inviteTx = authTx
			if cseq := authReq.CSeq(); cseq != nil {
				dlg.cseq = cseq.SeqNo
			}
			dlg.mu.Unlock()

		case res.StatusCode < 300:
			dlg.confirmRemote(res)

			ack := buildACKFor2xx(req, res)
			if err := e.client.WriteRequest(ack); err != nil {
				e.logger.Error("failed to send ack", "handle", dlg.handle, "error", err)
				tx.Terminate()
				e.finish(dlg.handle, "transport failure")
				return
			}

			if err := e.startMedia(dlg, res.Body()); err != nil {
				e.logger.Error("media setup failed", "handle", dlg.handle, "error", err)
			}
			e.events.OnConfirmed(dlg.handle)
			tx.Terminate()
			return

		default:
			tx.Terminate()
			e.finish(dlg.handle, disconnectCause(res.StatusCode, res.Reason))
			return
		}
	}
}

// startMedia negotiates against the peer's SDP and starts the RTP session,
// attaching a recorder first when auto-record is on.
func (e *Engine) startMedia(dlg *dialog, sdpBody []byte) error {
	desc, err := media.ParseDescription(sdpBody)
	if err != nil {
		return fmt.Errorf("parsing peer sdp: %w", err)
	}
	pt, err := desc.SelectCodec()
	if err != nil {
		return err
	}
	addr, err := desc.RTPAddr()
	if err != nil {
		return err
	}

	if e.autoRecord && dlg.recorder == nil {
		path := media.RecordingPath(e.recordingDir, dlg.handle, time.Now())
		rec, err := media.NewRecorder(path, e.logger)
		if err != nil {
			// The call proceeds unrecorded; losing audio capture is not
			// worth failing the call over.
			e.logger.Error("starting recorder failed", "handle", dlg.handle, "error", err)
		} else {
			dlg.recorder = rec
			dlg.media.SetRecorder(rec)
			e.events.OnRecording(dlg.handle, path)
		}
	}

	handle := dlg.handle
	dlg.media.OnDigit(func(digit rune) {
		e.events.OnDTMF(handle, digit)
	})
	dlg.media.Start(addr, pt)
	return nil
}

// finish removes and releases a dialog, then reports the disconnect.
// Exactly one caller wins the removal; the losers are no-ops, which is what
// keeps a remote BYE racing a local failure from double-reporting.
func (e *Engine) finish(handle, cause string) {
	dlg := e.dialogs.remove(handle)
	if dlg == nil {
		return
	}
	e.closeDialog(dlg)
	e.events.OnDisconnected(handle, cause)
}

// closeDialog releases media and finalizes the recording. The caller must
// already own the dialog (removed from the set).
func (e *Engine) closeDialog(dlg *dialog) {
	if dlg.media != nil {
		dlg.media.Close()
	}
	if dlg.recorder != nil {
		path, duration := dlg.recorder.Stop()
		e.logger.Info("recording finalized",
			"handle", dlg.handle,
			"path", path,
			"duration", duration.String(),
		)
	}
}

// buildACKFor2xx creates the ACK for a 2xx response to an INVITE. Per
// RFC 3261 §13.2.2.4 the ACK for a 2xx is generated by the UAC core, not
// the transaction layer. The Request-URI comes from the response Contact
// when present.
func buildACKFor2xx(inviteReq *sip.Request, inviteRes *sip.Response) *sip.Request {
	recipient := &inviteReq.Recipient
	if contact := inviteRes.Contact(); contact != nil {
		recipient = &contact.Address
	}

	ack := sip.NewRequest(sip.ACK, *recipient.Clone())
	ack.SipVersion = inviteReq.SipVersion

	if len(inviteReq.GetHeaders("Route")) > 0 {
		sip.CopyHeaders("Route", inviteReq, ack)
	}
	if h := inviteReq.From(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	// To comes from the response so it carries the remote tag.
	if h := inviteRes.To(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.CallID(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.CSeq(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if cseq := ack.CSeq(); cseq != nil {
		cseq.MethodName = sip.ACK
	}

	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	if h := inviteReq.Contact(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}

	ack.SetTransport(inviteReq.Transport())
	ack.SetSource(inviteReq.Source())
	return ack
}

// buildCancel creates the CANCEL for a pending INVITE. Per RFC 3261 §9.1 it
// copies the INVITE's Via (same branch), From, To, Call-ID, and CSeq number
// with the method changed.
func buildCancel(inviteReq *sip.Request) *sip.Request {
	cancel := sip.NewRequest(sip.CANCEL, *inviteReq.Recipient.Clone())
	cancel.SipVersion = inviteReq.SipVersion

	if len(inviteReq.GetHeaders("Via")) == 0 {
		// INVITE never made it to the transport; nothing to cancel.
		return nil
	}
	sip.CopyHeaders("Via", inviteReq, cancel)
	if len(inviteReq.GetHeaders("Route")) > 0 {
		sip.CopyHeaders("Route", inviteReq, cancel)
	}
	if h := inviteReq.From(); h != nil {
		cancel.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.To(); h != nil {
		cancel.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.CallID(); h != nil {
		cancel.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.CSeq(); h != nil {
		cancel.AppendHeader(sip.HeaderClone(h))
	}
	if cseq := cancel.CSeq(); cseq != nil {
		cseq.MethodName = sip.CANCEL
	}

	maxFwd := sip.MaxForwardsHeader(70)
	cancel.AppendHeader(&maxFwd)

	cancel.SetTransport(inviteReq.Transport())
	cancel.SetDestination(inviteReq.Destination())
	return cancel
}
