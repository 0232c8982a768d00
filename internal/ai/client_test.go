package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestWAV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.wav")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing test wav: %v", err)
	}
	return path
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/transcribe" {
			t.Errorf("expected path /v1/transcribe, got %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "audio/wav" {
			t.Errorf("expected Content-Type audio/wav, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFF-audio-bytes" {
			t.Errorf("unexpected upload body %q", body)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envelope{
			Data: json.RawMessage(`{"transcript":"hello from the other side"}`),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	transcript, err := client.Transcribe(context.Background(), writeTestWAV(t, "RIFF-audio-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "hello from the other side" {
		t.Errorf("transcript = %q", transcript)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	client := NewClient("http://unused", "")
	_, err := client.Transcribe(context.Background(), "/does/not/exist.wav")
	if err == nil {
		t.Fatal("expected error for missing recording")
	}
}

func TestSentiment_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sentiment" {
			t.Errorf("expected path /v1/sentiment, got %s", r.URL.Path)
		}
		var req textRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Text != "great call" {
			t.Errorf("text = %q", req.Text)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envelope{
			Data: json.RawMessage(`{"sentiment":"positive"}`),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	sentiment, err := client.Sentiment(context.Background(), "great call")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sentiment != "positive" {
		t.Errorf("sentiment = %q, want positive", sentiment)
	}
}

func TestSummarize_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/summary" {
			t.Errorf("expected path /v1/summary, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envelope{
			Data: json.RawMessage(`{"summary":"caller asked about billing"}`),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	summary, err := client.Summarize(context.Background(), "long transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "caller asked about billing" {
		t.Errorf("summary = %q", summary)
	}
}

func TestServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(envelope{Error: "invalid api key"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key")
	_, err := client.Sentiment(context.Background(), "text")
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error should carry the service message, got %v", err)
	}
}

func TestConfigured(t *testing.T) {
	if NewClient("", "").Configured() {
		t.Error("empty base URL should not be configured")
	}
	if !NewClient("http://x", "").Configured() {
		t.Error("client with base URL should be configured")
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Error("nil client should not be configured")
	}
}
