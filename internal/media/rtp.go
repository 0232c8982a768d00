package media

import "encoding/binary"

const (
	// RTP payload types for supported codecs.
	PayloadPCMU = 0 // G.711 u-law
	PayloadPCMA = 8 // G.711 a-law

	// PayloadTelephoneEvent is the dynamic payload type offered for
	// RFC 4733 telephone-event (DTMF). Commonly negotiated as 101.
	PayloadTelephoneEvent = 101

	// maxRTPPacket is the largest UDP datagram the session handles.
	maxRTPPacket = 1500

	// rtpHeaderSize is the fixed RTP header size without CSRC entries.
	// G.711 endpoints do not use CSRC or header extensions in practice.
	rtpHeaderSize = 12
)

// rtpPayloadType extracts the payload type from a raw RTP packet, or -1 if
// the packet is too small to be valid RTP.
func rtpPayloadType(pkt []byte) int {
	if len(pkt) < rtpHeaderSize {
		return -1
	}
	return int(pkt[1] & 0x7F)
}

// buildRTPHeader writes a fixed 12-byte RTP header into buf.
func buildRTPHeader(buf []byte, payloadType int, marker bool, seq uint16, timestamp, ssrc uint32) {
	buf[0] = 0x80 // version 2, no padding, no extension, no CSRC
	buf[1] = byte(payloadType)
	if marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], timestamp)
	binary.BigEndian.PutUint32(buf[8:12], ssrc)
}
