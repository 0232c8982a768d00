package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DTMFEvent is a decoded RFC 4733 telephone-event payload:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     event     |E|R| volume    |          duration             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type DTMFEvent struct {
	Event    uint8  // 0-9 digits, 10 = *, 11 = #, 12-15 = A-D
	End      bool   // E bit: marks the end of the event
	Volume   uint8  // power level in dBm0 (0-63)
	Duration uint16 // duration in timestamp units
}

const dtmfPayloadSize = 4

// ParseDTMFEvent decodes a telephone-event payload. Returns nil if the
// payload is too short.
func ParseDTMFEvent(payload []byte) *DTMFEvent {
	if len(payload) < dtmfPayloadSize {
		return nil
	}
	return &DTMFEvent{
		Event:    payload[0],
		End:      payload[1]&0x80 != 0,
		Volume:   payload[1] & 0x3F,
		Duration: uint16(payload[2])<<8 | uint16(payload[3]),
	}
}

// Digit returns the DTMF character for an event code, or 0 for codes outside
// the telephone-event digit range.
func (e *DTMFEvent) Digit() rune {
	switch {
	case e.Event <= 9:
		return rune('0' + e.Event)
	case e.Event == 10:
		return '*'
	case e.Event == 11:
		return '#'
	case e.Event >= 12 && e.Event <= 15:
		return rune('A' + e.Event - 12)
	default:
		return 0
	}
}

// SIP INFO DTMF
//
// Digits sent out of band travel in INFO requests with
// Content-Type application/dtmf-relay and a body of the form:
//
//	Signal=5\r\nDuration=250\r\n
//
// Some endpoints use the bare application/dtmf form where the body is just
// the digit itself.

// ErrInvalidDTMFBody is returned when an INFO body cannot be parsed as DTMF.
var ErrInvalidDTMFBody = errors.New("invalid dtmf info body")

// FormatDTMFRelay builds an application/dtmf-relay body for one digit.
func FormatDTMFRelay(digit rune, durationMs int) []byte {
	return []byte(fmt.Sprintf("Signal=%c\r\nDuration=%d\r\n", digit, durationMs))
}

// ParseDTMFRelay parses an INFO DTMF body. contentType selects the format:
// application/dtmf-relay uses Signal=/Duration= lines, application/dtmf is
// the bare digit. Returns the digit and the duration in milliseconds.
func ParseDTMFRelay(contentType string, body []byte) (rune, int, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch ct {
	case "application/dtmf-relay":
		return parseDTMFRelayBody(body)
	case "application/dtmf":
		digit, ok := dtmfDigit(strings.TrimSpace(string(body)))
		if !ok {
			return 0, 0, ErrInvalidDTMFBody
		}
		return digit, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: content type %q", ErrInvalidDTMFBody, contentType)
	}
}

func parseDTMFRelayBody(body []byte) (rune, int, error) {
	var digit rune
	duration := 0
	found := false

	for _, line := range strings.Split(string(body), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "signal":
			d, ok := dtmfDigit(value)
			if !ok {
				return 0, 0, fmt.Errorf("%w: signal %q", ErrInvalidDTMFBody, value)
			}
			digit = d
			found = true
		case "duration":
			if ms, err := strconv.Atoi(value); err == nil {
				duration = ms
			}
		}
	}

	if !found {
		return 0, 0, ErrInvalidDTMFBody
	}
	return digit, duration, nil
}

// dtmfDigit validates a single-character DTMF signal string.
func dtmfDigit(s string) (rune, bool) {
	if len(s) != 1 {
		return 0, false
	}
	r := rune(s[0])
	switch {
	case r >= '0' && r <= '9', r == '*', r == '#':
		return r, true
	case r >= 'A' && r <= 'D':
		return r, true
	case r >= 'a' && r <= 'd':
		return r - ('a' - 'A'), true
	default:
		return 0, false
	}
}
