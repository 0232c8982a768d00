package media

import (
	"strings"
	"testing"
)

const sampleSDP = "v=0\r\n" +
	"o=- 12345 1 IN IP4 203.0.113.5\r\n" +
	"s=-\r\n" +
	"c=IN IP4 203.0.113.5\r\n" +
	"t=0 0\r\n" +
	"m=audio 49170 RTP/AVP 0 8 101\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"a=fmtp:101 0-16\r\n" +
	"a=sendrecv\r\n"

func TestParseDescription(t *testing.T) {
	d, err := ParseDescription([]byte(sampleSDP))
	if err != nil {
		t.Fatalf("ParseDescription: %v", err)
	}

	if d.Address != "203.0.113.5" {
		t.Errorf("address = %q", d.Address)
	}
	if d.Port != 49170 {
		t.Errorf("port = %d", d.Port)
	}
	if len(d.Formats) != 3 || d.Formats[0] != 0 || d.Formats[1] != 8 {
		t.Errorf("formats = %v", d.Formats)
	}
	if d.Direction != DirSendRecv {
		t.Errorf("direction = %q", d.Direction)
	}
	if d.DTMFPayload != 101 {
		t.Errorf("dtmf payload = %d", d.DTMFPayload)
	}

	pt, err := d.SelectCodec()
	if err != nil || pt != PayloadPCMU {
		t.Errorf("SelectCodec = %d, %v", pt, err)
	}

	addr, err := d.RTPAddr()
	if err != nil || addr.String() != "203.0.113.5:49170" {
		t.Errorf("RTPAddr = %v, %v", addr, err)
	}
}

func TestParseDescriptionMediaLevelConnection(t *testing.T) {
	body := "v=0\r\n" +
		"o=- 1 1 IN IP4 198.51.100.1\r\n" +
		"s=-\r\n" +
		"c=IN IP4 198.51.100.1\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 8\r\n" +
		"c=IN IP4 198.51.100.99\r\n" +
		"a=sendonly\r\n"

	d, err := ParseDescription([]byte(body))
	if err != nil {
		t.Fatalf("ParseDescription: %v", err)
	}
	if d.Address != "198.51.100.99" {
		t.Errorf("media-level connection not preferred: %q", d.Address)
	}
	if !d.OnHold() {
		t.Error("sendonly should report hold")
	}
	if pt, err := d.SelectCodec(); err != nil || pt != PayloadPCMA {
		t.Errorf("SelectCodec = %d, %v", pt, err)
	}
}

func TestParseDescriptionErrors(t *testing.T) {
	bodies := map[string]string{
		"empty":    "",
		"no audio": "v=0\r\no=- 1 1 IN IP4 10.0.0.1\r\ns=-\r\nc=IN IP4 10.0.0.1\r\nt=0 0\r\n",
		"no addr":  "v=0\r\no=- 1 1 IN IP4 10.0.0.1\r\ns=-\r\nt=0 0\r\nm=audio 5004 RTP/AVP 0\r\n",
	}
	for name, body := range bodies {
		if _, err := ParseDescription([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestBuildBodyRoundTrip(t *testing.T) {
	body := BuildBody(BodyParams{
		Address:   "192.0.2.10",
		Port:      40000,
		SessionID: 777,
		Version:   2,
		Formats:   []int{PayloadPCMU, PayloadPCMA},
		Direction: DirSendOnly,
	})

	if !strings.Contains(string(body), "a=sendonly\r\n") {
		t.Errorf("missing direction attribute:\n%s", body)
	}

	d, err := ParseDescription(body)
	if err != nil {
		t.Fatalf("parsing built body: %v", err)
	}
	if d.Address != "192.0.2.10" || d.Port != 40000 {
		t.Errorf("endpoint = %s:%d", d.Address, d.Port)
	}
	if d.Direction != DirSendOnly {
		t.Errorf("direction = %q", d.Direction)
	}
	if d.DTMFPayload != PayloadTelephoneEvent {
		t.Errorf("dtmf payload = %d", d.DTMFPayload)
	}
}
