package media

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Stream directions per RFC 3264. Hold is signaled by re-offering the
// stream as sendonly; the far end answers recvonly or inactive.
const (
	DirSendRecv = "sendrecv"
	DirSendOnly = "sendonly"
	DirRecvOnly = "recvonly"
	DirInactive = "inactive"
)

// Description is the parsed view of an SDP body, reduced to the fields a
// single-stream G.711 endpoint negotiates on: where to send RTP, which
// payload types the peer accepts, and the stream direction.
type Description struct {
	// Address is the connection address from the session or media level
	// c= line (media level wins).
	Address string

	// Port is the audio media transport port.
	Port int

	// Formats are the payload types listed on the audio m= line.
	Formats []int

	// Direction is the audio stream direction, defaulting to sendrecv.
	Direction string

	// DTMFPayload is the peer's telephone-event payload type, 0 if the
	// peer did not offer one.
	DTMFPayload int
}

// ParseDescription parses an SDP body. Only the first audio media section is
// considered; an SDP without one is an error.
func ParseDescription(body []byte) (*Description, error) {
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("empty sdp body")
	}

	d := &Description{Direction: DirSendRecv}
	var sessionAddr string
	inAudio := false
	audioSeen := false

	for _, line := range lines {
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		value := line[2:]

		switch line[0] {
		case 'c':
			addr, err := parseConnectionAddr(value)
			if err != nil {
				return nil, fmt.Errorf("invalid connection line: %w", err)
			}
			if inAudio {
				d.Address = addr
			} else if !audioSeen {
				sessionAddr = addr
			}

		case 'm':
			fields := strings.Fields(value)
			if len(fields) < 4 {
				return nil, fmt.Errorf("invalid media line %q", value)
			}
			if fields[0] != "audio" || audioSeen {
				inAudio = false
				continue
			}
			port, err := strconv.Atoi(strings.SplitN(fields[1], "/", 2)[0])
			if err != nil {
				return nil, fmt.Errorf("invalid media port %q", fields[1])
			}
			d.Port = port
			for _, f := range fields[3:] {
				pt, err := strconv.Atoi(f)
				if err != nil {
					return nil, fmt.Errorf("invalid payload type %q", f)
				}
				d.Formats = append(d.Formats, pt)
			}
			inAudio = true
			audioSeen = true

		case 'a':
			if !inAudio {
				continue
			}
			switch {
			case value == DirSendRecv, value == DirSendOnly,
				value == DirRecvOnly, value == DirInactive:
				d.Direction = value
			case strings.HasPrefix(value, "rtpmap:"):
				pt, name := parseRtpmap(value[len("rtpmap:"):])
				if strings.EqualFold(name, "telephone-event") {
					d.DTMFPayload = pt
				}
			}
		}
	}

	if !audioSeen {
		return nil, fmt.Errorf("sdp has no audio media")
	}
	if d.Address == "" {
		d.Address = sessionAddr
	}
	if d.Address == "" {
		return nil, fmt.Errorf("sdp has no connection address")
	}
	return d, nil
}

// RTPAddr returns the peer's RTP endpoint.
func (d *Description) RTPAddr() (*net.UDPAddr, error) {
	ip := net.ParseIP(d.Address)
	if ip == nil {
		return nil, fmt.Errorf("invalid rtp address %q", d.Address)
	}
	return &net.UDPAddr{IP: ip, Port: d.Port}, nil
}

// SelectCodec picks the G.711 variant to use from the peer's format list,
// preferring the peer's ordering. Returns an error when the peer offers
// neither PCMU nor PCMA.
func (d *Description) SelectCodec() (int, error) {
	for _, pt := range d.Formats {
		if pt == PayloadPCMU || pt == PayloadPCMA {
			return pt, nil
		}
	}
	return 0, fmt.Errorf("no supported audio codec in %v", d.Formats)
}

// OnHold reports whether the description signals hold from the peer's side.
func (d *Description) OnHold() bool {
	return d.Direction == DirSendOnly || d.Direction == DirInactive
}

// BodyParams configures an SDP body built by BuildBody.
type BodyParams struct {
	// Address and Port are the local RTP endpoint.
	Address string
	Port    int

	// SessionID and Version populate the o= line. Version must increase
	// for each re-offer within a session.
	SessionID int64
	Version   int64

	// Formats are the payload types to offer. An offer lists both G.711
	// variants; an answer echoes the selected one.
	Formats []int

	// Direction is the stream direction attribute. Empty means sendrecv.
	Direction string
}

// BuildBody serializes an SDP offer or answer with a single audio stream
// plus telephone-event for out-of-band DTMF.
func BuildBody(p BodyParams) []byte {
	direction := p.Direction
	if direction == "" {
		direction = DirSendRecv
	}

	formats := make([]string, 0, len(p.Formats)+1)
	for _, pt := range p.Formats {
		formats = append(formats, strconv.Itoa(pt))
	}
	formats = append(formats, strconv.Itoa(PayloadTelephoneEvent))

	var b strings.Builder
	b.WriteString("v=0\r\n")
	fmt.Fprintf(&b, "o=- %d %d IN IP4 %s\r\n", p.SessionID, p.Version, p.Address)
	b.WriteString("s=-\r\n")
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", p.Address)
	b.WriteString("t=0 0\r\n")
	fmt.Fprintf(&b, "m=audio %d RTP/AVP %s\r\n", p.Port, strings.Join(formats, " "))
	for _, pt := range p.Formats {
		switch pt {
		case PayloadPCMU:
			b.WriteString("a=rtpmap:0 PCMU/8000\r\n")
		case PayloadPCMA:
			b.WriteString("a=rtpmap:8 PCMA/8000\r\n")
		}
	}
	fmt.Fprintf(&b, "a=rtpmap:%d telephone-event/8000\r\n", PayloadTelephoneEvent)
	fmt.Fprintf(&b, "a=fmtp:%d 0-16\r\n", PayloadTelephoneEvent)
	b.WriteString("a=ptime:20\r\n")
	fmt.Fprintf(&b, "a=%s\r\n", direction)

	return []byte(b.String())
}

// parseConnectionAddr extracts the address from a c= line value:
// <nettype> <addrtype> <connection-address>. TTL and multicast count
// suffixes are stripped.
func parseConnectionAddr(value string) (string, error) {
	fields := strings.Fields(value)
	if len(fields) < 3 {
		return "", fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	addr := fields[2]
	if i := strings.Index(addr, "/"); i >= 0 {
		addr = addr[:i]
	}
	if net.ParseIP(addr) == nil {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return addr, nil
}

// parseRtpmap splits an rtpmap value "<pt> <name>/<rate>" into payload type
// and codec name. Malformed values return pt -1.
func parseRtpmap(value string) (int, string) {
	pt, rest, ok := strings.Cut(value, " ")
	if !ok {
		return -1, ""
	}
	n, err := strconv.Atoi(pt)
	if err != nil {
		return -1, ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return n, name
}
