package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sipdeck/sipdeck/internal/database/models"
)

// seedCall inserts a call record directly through the server's repository.
func seedCall(t *testing.T, s *Server, c *models.Call) *models.Call {
	t.Helper()
	if c.StartTime.IsZero() {
		c.StartTime = time.Now().Add(-time.Hour)
	}
	if c.AnalyticsState == "" {
		c.AnalyticsState = models.AnalyticsSkipped
	}
	if err := s.history.Create(context.Background(), c); err != nil {
		t.Fatalf("seeding call: %v", err)
	}
	return c
}

func TestListHistory(t *testing.T) {
	s := newTestServer(t, &fakePhone{})
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	seedCall(t, s, &models.Call{CallID: "a", Direction: "outbound",
		RemoteURI: "sip:2002@example.com", StartTime: base, Disposition: "answered"})
	seedCall(t, s, &models.Call{CallID: "b", Direction: "inbound",
		RemoteURI: "sip:boss@example.com", StartTime: base.Add(time.Hour), Disposition: "missed"})

	w, env := doRequest(t, s, http.MethodGet, "/api/v1/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	data := env.Data.(map[string]any)
	if data["total"] != float64(2) {
		t.Errorf("total = %v, want 2", data["total"])
	}
	items := data["items"].([]any)
	// Newest first.
	if items[0].(map[string]any)["call_id"] != "b" {
		t.Errorf("first item = %v", items[0])
	}

	// Direction filter.
	w, env = doRequest(t, s, http.MethodGet, "/api/v1/history?direction=inbound", "")
	if w.Code != http.StatusOK {
		t.Fatalf("filtered list: status = %d", w.Code)
	}
	if env.Data.(map[string]any)["total"] != float64(1) {
		t.Errorf("inbound total = %v, want 1", env.Data.(map[string]any)["total"])
	}

	// Invalid direction rejected.
	w, _ = doRequest(t, s, http.MethodGet, "/api/v1/history?direction=sideways", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad direction: status = %d, want 400", w.Code)
	}
}

func TestGetHistory(t *testing.T) {
	s := newTestServer(t, &fakePhone{})
	rec := seedCall(t, s, &models.Call{CallID: "a", Direction: "outbound",
		RemoteURI: "sip:2002@example.com", Disposition: "answered",
		Transcript: "hello there", Sentiment: "positive"})

	w, env := doRequest(t, s, http.MethodGet,
		"/api/v1/history/"+strconv.FormatInt(rec.ID, 10), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	data := env.Data.(map[string]any)
	if data["transcript"] != "hello there" || data["sentiment"] != "positive" {
		t.Errorf("payload = %v", data)
	}

	w, _ = doRequest(t, s, http.MethodGet, "/api/v1/history/99999", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record: status = %d, want 404", w.Code)
	}

	w, _ = doRequest(t, s, http.MethodGet, "/api/v1/history/notanumber", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestDownloadRecording(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	wav := filepath.Join(t.TempDir(), "call_1.wav")
	if err := os.WriteFile(wav, []byte("RIFF0000WAVE"), 0644); err != nil {
		t.Fatalf("writing wav: %v", err)
	}

	withRec := seedCall(t, s, &models.Call{CallID: "a", Direction: "outbound",
		RemoteURI: "sip:x@y", Disposition: "answered", RecordingFile: wav})
	noRec := seedCall(t, s, &models.Call{CallID: "b", Direction: "outbound",
		RemoteURI: "sip:x@y", Disposition: "missed"})

	w, _ := doRequest(t, s, http.MethodGet,
		"/api/v1/history/"+strconv.FormatInt(withRec.ID, 10)+"/recording", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", ct)
	}
	if w.Body.String() != "RIFF0000WAVE" {
		t.Errorf("body = %q", w.Body.String())
	}

	w, _ = doRequest(t, s, http.MethodGet,
		"/api/v1/history/"+strconv.FormatInt(noRec.ID, 10)+"/recording", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("no recording: status = %d, want 404", w.Code)
	}
}

func TestDeleteHistoryRemovesRecording(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	wav := filepath.Join(t.TempDir(), "call_2.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0644); err != nil {
		t.Fatalf("writing wav: %v", err)
	}
	rec := seedCall(t, s, &models.Call{CallID: "a", Direction: "inbound",
		RemoteURI: "sip:x@y", Disposition: "answered", RecordingFile: wav})

	w, _ := doRequest(t, s, http.MethodDelete,
		"/api/v1/history/"+strconv.FormatInt(rec.ID, 10), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	if _, err := os.Stat(wav); !os.IsNotExist(err) {
		t.Error("recording file still exists after delete")
	}
	if got, err := s.history.GetByID(context.Background(), rec.ID); err != nil || got != nil {
		t.Errorf("record still present after delete: %v, %v", got, err)
	}
}
