package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]string{"name": "test"})

	if w.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type application/json, got %q", ct)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Error != "" {
		t.Errorf("expected empty error, got %q", env.Error)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be map, got %T", env.Data)
	}
	if data["name"] != "test" {
		t.Errorf("expected name=test, got %v", data["name"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Error != "invalid input" {
		t.Errorf("expected error 'invalid input', got %q", env.Error)
	}
	if env.Data != nil {
		t.Errorf("expected nil data, got %v", env.Data)
	}
}

func TestEnvelopeOmitsEmptyError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, "ok")

	if body := w.Body.String(); strings.Contains(body, `"error"`) {
		t.Errorf("expected error field to be omitted, got %s", body)
	}
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"name":"test","value":42}`, ""},
		{"empty body", ``, "request body must not be empty"},
		{"malformed", `{bad`, "malformed json"},
		{"truncated", `{"name":`, "malformed json"},
		{"multiple objects", `{"value":1}{"value":2}`, "request body must contain a single json object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst struct {
				Name  string `json:"name"`
				Value int    `json:"value"`
			}
			if errMsg := readJSON(r, &dst); errMsg != tt.wantErr {
				t.Errorf("readJSON = %q, want %q", errMsg, tt.wantErr)
			}
		})
	}
}

func TestReadJSON_UnknownField(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"name":"test","extra":"field"}`))

	var dst struct {
		Name string `json:"name"`
	}
	errMsg := readJSON(r, &dst)
	if !strings.HasPrefix(errMsg, "unknown field") {
		t.Errorf("expected 'unknown field ...' error, got %q", errMsg)
	}
}

func TestReadJSON_WrongType(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"value":"not_a_number"}`))

	var dst struct {
		Value int `json:"value"`
	}
	if errMsg := readJSON(r, &dst); errMsg == "" {
		t.Error("expected error for wrong type, got empty string")
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    string
	}{
		{"defaults", "/items", defaultLimit, 0, ""},
		{"custom", "/items?limit=50&offset=10", 50, 10, ""},
		{"clamped", "/items?limit=500", maxLimit, 0, ""},
		{"zero offset", "/items?offset=0", defaultLimit, 0, ""},
		{"bad limit", "/items?limit=abc", 0, 0, "limit must be a positive integer"},
		{"zero limit", "/items?limit=0", 0, 0, "limit must be a positive integer"},
		{"negative offset", "/items?offset=-1", 0, 0, "offset must be a non-negative integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.query, nil)
			p, errMsg := parsePagination(r)
			if errMsg != tt.wantErr {
				t.Fatalf("error = %q, want %q", errMsg, tt.wantErr)
			}
			if tt.wantErr != "" {
				return
			}
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("pagination = %+v, want limit %d offset %d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestPaginatedResponseShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  []string{"a", "b"},
		Total:  10,
		Limit:  20,
		Offset: 0,
	})

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	data := env.Data.(map[string]any)
	if data["total"] != float64(10) || data["limit"] != float64(20) {
		t.Errorf("pagination fields = %v", data)
	}
	if items := data["items"].([]any); len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}
