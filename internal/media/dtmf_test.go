package media

import (
	"errors"
	"testing"
)

func TestParseDTMFEvent(t *testing.T) {
	// Event 5, end bit set, volume 10, duration 800.
	payload := []byte{5, 0x80 | 10, 0x03, 0x20}

	ev := ParseDTMFEvent(payload)
	if ev == nil {
		t.Fatal("ParseDTMFEvent returned nil")
	}
	if ev.Event != 5 || !ev.End || ev.Volume != 10 || ev.Duration != 800 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Digit() != '5' {
		t.Errorf("digit = %q", ev.Digit())
	}

	if ParseDTMFEvent([]byte{1, 2}) != nil {
		t.Error("short payload should return nil")
	}
}

func TestDTMFEventDigits(t *testing.T) {
	tests := []struct {
		event uint8
		want  rune
	}{
		{0, '0'}, {9, '9'}, {10, '*'}, {11, '#'}, {12, 'A'}, {15, 'D'}, {16, 0},
	}
	for _, tt := range tests {
		ev := DTMFEvent{Event: tt.event}
		if got := ev.Digit(); got != tt.want {
			t.Errorf("event %d digit = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestParseDTMFRelay(t *testing.T) {
	digit, dur, err := ParseDTMFRelay("application/dtmf-relay", []byte("Signal=5\r\nDuration=160\r\n"))
	if err != nil {
		t.Fatalf("ParseDTMFRelay: %v", err)
	}
	if digit != '5' || dur != 160 {
		t.Errorf("got %q/%d, want 5/160", digit, dur)
	}

	// Lowercase letter digits are normalized.
	digit, _, err = ParseDTMFRelay("application/dtmf-relay", []byte("Signal=a\r\n"))
	if err != nil || digit != 'A' {
		t.Errorf("got %q, %v, want A", digit, err)
	}

	// Bare application/dtmf body.
	digit, _, err = ParseDTMFRelay("application/dtmf", []byte("#"))
	if err != nil || digit != '#' {
		t.Errorf("got %q, %v, want #", digit, err)
	}

	// Content-type parameters are tolerated.
	if _, _, err := ParseDTMFRelay("application/dtmf-relay; charset=utf-8", []byte("Signal=1\r\n")); err != nil {
		t.Errorf("parameterized content type rejected: %v", err)
	}

	bad := []struct {
		ct   string
		body string
	}{
		{"application/dtmf-relay", "Duration=160\r\n"},
		{"application/dtmf-relay", "Signal=Z\r\n"},
		{"application/dtmf", "12"},
		{"application/sdp", "v=0"},
	}
	for _, tt := range bad {
		if _, _, err := ParseDTMFRelay(tt.ct, []byte(tt.body)); !errors.Is(err, ErrInvalidDTMFBody) {
			t.Errorf("ParseDTMFRelay(%q, %q) err = %v, want ErrInvalidDTMFBody", tt.ct, tt.body, err)
		}
	}
}

func TestFormatDTMFRelay(t *testing.T) {
	got := string(FormatDTMFRelay('9', 250))
	want := "Signal=9\r\nDuration=250\r\n"
	if got != want {
		t.Errorf("FormatDTMFRelay = %q, want %q", got, want)
	}

	digit, dur, err := ParseDTMFRelay("application/dtmf-relay", FormatDTMFRelay('*', 100))
	if err != nil || digit != '*' || dur != 100 {
		t.Errorf("round trip = %q/%d/%v", digit, dur, err)
	}
}
