package engine

import (
	"sync"

	"github.com/emiago/sipgo/sip"

	"github.com/sipdeck/sipdeck/internal/media"
)

type dialogRole int

const (
	roleCaller dialogRole = iota
	roleCallee
)

// dialog holds the SIP state for one call leg: the identifiers needed to
// build in-dialog requests (BYE, re-INVITE, INFO) plus the pending
// transactions for calls that are still being set up.
type dialog struct {
	handle string // engine handle; also the SIP Call-ID
	role   dialogRole

	mu        sync.Mutex
	localTag  string
	remoteTag string
	localURI  sip.Uri
	remoteURI sip.Uri

	// remoteTarget is the peer's Contact, where in-dialog requests go.
	remoteTarget sip.Uri

	cseq      uint32
	transport string

	// inviteReq is the dialog-establishing INVITE. For outbound calls it
	// is ours (needed to build CANCEL and ACK); for inbound it is theirs.
	inviteReq *sip.Request

	// inviteTx is our pending client transaction while an outbound call
	// rings.
	inviteTx sip.ClientTransaction

	// serverTx is the peer's pending INVITE transaction while an inbound
	// call waits for an answer decision.
	serverTx sip.ServerTransaction

	answered bool

	// offerSDP is the caller's offer on an inbound call, parsed when the
	// call is answered.
	offerSDP []byte

	media    *media.Session
	recorder *media.Recorder

	// sdpSessionID and sdpVersion populate the o= line; the version bumps
	// on every re-offer (hold, resume).
	sdpSessionID int64
	sdpVersion   int64
}

// dialogSet tracks dialogs by handle. The softphone holds a single call,
// but teardown races (remote BYE against local hangup) still need the
// lookup to be atomic.
type dialogSet struct {
	mu      sync.Mutex
	dialogs map[string]*dialog
}

func newDialogSet() *dialogSet {
	return &dialogSet{dialogs: make(map[string]*dialog)}
}

func (s *dialogSet) add(d *dialog) {
	s.mu.Lock()
	s.dialogs[d.handle] = d
	s.mu.Unlock()
}

func (s *dialogSet) get(handle string) *dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogs[handle]
}

// remove takes the dialog out of the set, returning nil if another path
// already removed it. Whoever gets the dialog owns its teardown.
func (s *dialogSet) remove(handle string) *dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dialogs[handle]
	if !ok {
		return nil
	}
	delete(s.dialogs, handle)
	return d
}

func (s *dialogSet) all() []*dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*dialog, 0, len(s.dialogs))
	for _, d := range s.dialogs {
		out = append(out, d)
	}
	return out
}

// newRequest builds an in-dialog request toward the peer's Contact with the
// dialog's tags and an incremented CSeq.
func (d *dialog) newRequest(method sip.RequestMethod, contact string) *sip.Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cseq++

	req := sip.NewRequest(method, *d.remoteTarget.Clone())
	req.SetTransport(d.transport)
	req.AppendHeader(sip.NewHeader("Call-ID", d.handle))

	from := &sip.FromHeader{Address: *d.localURI.Clone()}
	from.Params.Add("tag", d.localTag)
	req.AppendHeader(from)

	to := &sip.ToHeader{Address: *d.remoteURI.Clone()}
	if d.remoteTag != "" {
		to.Params.Add("tag", d.remoteTag)
	}
	req.AppendHeader(to)

	req.AppendHeader(&sip.CSeqHeader{SeqNo: d.cseq, MethodName: method})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	req.AppendHeader(sip.NewHeader("Contact", contact))
	return req
}

// confirmRemote records the peer's dialog half once a 2xx establishes it:
// the To tag and the Contact the peer wants in-dialog requests sent to.
func (d *dialog) confirmRemote(res *sip.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if to := res.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			d.remoteTag = tag
		}
	}
	if contact := res.Contact(); contact != nil {
		d.remoteTarget = *contact.Address.Clone()
	}
	d.answered = true
}

// nextSDPVersion bumps and returns the o= line version for a re-offer.
func (d *dialog) nextSDPVersion() (int64, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sdpVersion++
	return d.sdpSessionID, d.sdpVersion
}
