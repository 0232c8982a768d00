package engine

import (
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sipdeck/sipdeck/internal/media"
)

// handleInvite processes inbound INVITEs: new calls are offered upward
// through OnIncoming, re-INVITEs within the active dialog (peer hold and
// resume) are answered in place.
func (e *Engine) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}
	if callID == "" {
		e.respond(req, tx, 400, "Bad Request")
		return
	}

	// A To tag marks an in-dialog re-INVITE.
	if to := req.To(); to != nil {
		if _, ok := to.Params.Get("tag"); ok {
			e.handleReinvite(callID, req, tx)
			return
		}
	}

	from := req.From()
	if from == nil {
		e.respond(req, tx, 400, "Bad Request")
		return
	}
	remoteURI := from.Address.String()

	if !e.events.OnIncoming(callID, remoteURI) {
		e.logger.Info("rejecting incoming call",
			"call_id", callID, "from", remoteURI, "source", req.Source())
		e.respond(req, tx, 486, "Busy Here")
		return
	}

	dlg := &dialog{
		handle:       callID,
		role:         roleCallee,
		localTag:     sip.GenerateTagN(16),
		localURI:     sip.Uri{Scheme: "sip", User: e.cfg.Username, Host: e.cfg.Domain},
		remoteURI:    *from.Address.Clone(),
		remoteTarget: *from.Address.Clone(),
		transport:    req.Transport(),
		inviteReq:    req,
		serverTx:     tx,
		offerSDP:     req.Body(),
		sdpSessionID: time.Now().Unix(),
		sdpVersion:   1,
	}
	if tag, ok := from.Params.Get("tag"); ok {
		dlg.remoteTag = tag
	}
	if contact := req.Contact(); contact != nil {
		dlg.remoteTarget = *contact.Address.Clone()
	}
	e.dialogs.add(dlg)

	e.logger.Info("incoming call ringing",
		"call_id", callID, "from", remoteURI, "source", req.Source())

	ringing := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
	addToTag(ringing, dlg.localTag)
	if err := tx.Respond(ringing); err != nil {
		e.logger.Error("failed to send ringing", "call_id", callID, "error", err)
	}

	// The caller can abandon the call before we answer; sipgo terminates
	// the transaction when the CANCEL arrives.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		<-tx.Done()
		dlg.mu.Lock()
		answered := dlg.answered
		dlg.mu.Unlock()
		if !answered {
			e.finish(callID, "cancelled")
		}
	}()
}

// handleReinvite answers a re-INVITE inside the active dialog. The peer
// re-offers on hold and resume; we answer with the mirrored direction and
// retarget the RTP stream if the peer moved it.
func (e *Engine) handleReinvite(callID string, req *sip.Request, tx sip.ServerTransaction) {
	dlg := e.dialogs.get(callID)
	if dlg == nil {
		e.respond(req, tx, 481, "Call/Transaction Does Not Exist")
		return
	}

	desc, err := media.ParseDescription(req.Body())
	if err != nil {
		e.logger.Warn("unparseable re-invite sdp", "call_id", callID, "error", err)
		e.respond(req, tx, 488, "Not Acceptable Here")
		return
	}
	pt, err := desc.SelectCodec()
	if err != nil {
		e.respond(req, tx, 488, "Not Acceptable Here")
		return
	}

	direction := media.DirSendRecv
	if desc.OnHold() {
		direction = media.DirRecvOnly
		e.logger.Info("peer placed call on hold", "call_id", callID)
	} else {
		e.logger.Info("peer resumed call", "call_id", callID)
	}

	sessionID, version := dlg.nextSDPVersion()
	answer := media.BuildBody(media.BodyParams{
		Address:   e.localIP,
		Port:      dlg.media.Port(),
		SessionID: sessionID,
		Version:   version,
		Formats:   []int{pt},
		Direction: direction,
	})

	res := sip.NewResponseFromRequest(req, 200, "OK", answer)
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	res.AppendHeader(sip.NewHeader("Contact", e.contactURI()))
	addToTag(res, dlg.localTag)
	if err := tx.Respond(res); err != nil {
		e.logger.Error("failed to answer re-invite", "call_id", callID, "error", err)
		return
	}

	// Retarget the stream in case the peer moved its media endpoint.
	if addr, err := desc.RTPAddr(); err == nil && dlg.media != nil {
		dlg.media.Start(addr, pt)
	}
}

// handleBye tears down the active call at the peer's request.
func (e *Engine) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}

	e.logger.Info("bye received", "call_id", callID, "source", req.Source())
	e.respond(req, tx, 200, "OK")
	e.finish(callID, "remote hangup")
}

// handleAck confirms our 200 OK for an answered inbound call. ACK is not
// transactional; receipt is only logged.
func (e *Engine) handleAck(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}
	e.logger.Debug("ack received", "call_id", callID, "source", req.Source())
}

// handleInfo surfaces out-of-band DTMF digits sent by the far end.
func (e *Engine) handleInfo(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}

	ct := req.ContentType()
	if ct == nil {
		e.respond(req, tx, 200, "OK")
		return
	}

	digit, durationMs, err := media.ParseDTMFRelay(ct.Value(), req.Body())
	if err != nil {
		e.logger.Debug("info with unsupported content type",
			"call_id", callID, "content_type", ct.Value())
		e.respond(req, tx, 200, "OK")
		return
	}

	e.logger.Info("dtmf received via info",
		"call_id", callID, "digit", string(digit), "duration_ms", durationMs)
	e.respond(req, tx, 200, "OK")

	if e.dialogs.get(callID) != nil {
		e.events.OnDTMF(callID, digit)
	}
}

// handleOptions answers keepalive pings from the registrar or peers.
func (e *Engine) handleOptions(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	res.AppendHeader(sip.NewHeader("Accept", "application/sdp"))
	res.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, OPTIONS, INFO"))
	if err := tx.Respond(res); err != nil {
		e.logger.Error("failed to respond to options", "error", err)
	}
}

func (e *Engine) respond(req *sip.Request, tx sip.ServerTransaction, code int, reason string) {
	res := sip.NewResponseFromRequest(req, code, reason, nil)
	if err := tx.Respond(res); err != nil {
		e.logger.Error("failed to send response", "code", code, "error", err)
	}
}
