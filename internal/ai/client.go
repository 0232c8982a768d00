package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TranscribeResponse is the response from POST /v1/transcribe.
type TranscribeResponse struct {
	Transcript string `json:"transcript"`
}

// SentimentResponse is the response from POST /v1/sentiment.
type SentimentResponse struct {
	Sentiment string `json:"sentiment"` // "positive", "neutral", "negative"
}

// SummaryResponse is the response from POST /v1/summary.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// textRequest is the payload for the text analysis endpoints.
type textRequest struct {
	Text string `json:"text"`
}

// envelope is the standard analytics service response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Client is an HTTP client for the call analytics service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a new analytics service client. baseURL is the service
// endpoint (e.g. "https://analytics.example.com"); apiKey is sent as a
// bearer token with each request.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		// Transcription of long recordings is slow; allow generous time.
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Configured returns true if the client has a base URL to talk to.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Transcribe uploads the WAV recording at path and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("analytics: opening recording: %w", err)
	}
	defer f.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", f)
	if err != nil {
		return "", fmt.Errorf("analytics: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "audio/wav")
	c.setAuth(httpReq)

	respBody, err := c.do(httpReq)
	if err != nil {
		return "", err
	}

	var res TranscribeResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return "", fmt.Errorf("analytics: decoding transcribe response: %w", err)
	}
	return res.Transcript, nil
}

// Sentiment classifies the overall sentiment of a transcript.
func (c *Client) Sentiment(ctx context.Context, transcript string) (string, error) {
	respBody, err := c.postJSON(ctx, "/v1/sentiment", textRequest{Text: transcript})
	if err != nil {
		return "", err
	}

	var res SentimentResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return "", fmt.Errorf("analytics: decoding sentiment response: %w", err)
	}
	return res.Sentiment, nil
}

// Summarize produces a short summary of a transcript.
func (c *Client) Summarize(ctx context.Context, transcript string) (string, error) {
	respBody, err := c.postJSON(ctx, "/v1/summary", textRequest{Text: transcript})
	if err != nil {
		return "", err
	}

	var res SummaryResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return "", fmt.Errorf("analytics: decoding summary response: %w", err)
	}
	return res.Summary, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("analytics: marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("analytics: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	return c.do(httpReq)
}

// do executes the request and unwraps the response envelope, returning the
// raw data payload.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analytics: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("analytics: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return nil, fmt.Errorf("analytics: service error (status %d): %s", resp.StatusCode, env.Error)
		}
		return nil, fmt.Errorf("analytics: service returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("analytics: decoding response: %w", err)
	}
	return env.Data, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
