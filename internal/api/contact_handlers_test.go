package api

import (
	"net/http"
	"strconv"
	"testing"
)

func TestContactCRUD(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	// Create.
	w, env := doRequest(t, s, http.MethodPost, "/api/v1/contacts",
		`{"name":"Alice","uri":"sip:alice@example.com","phone":"+1 555 0100","email":"alice@example.com","notes":"工作"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", w.Code, w.Body.String())
	}
	created := env.Data.(map[string]any)
	id := created["id"].(float64)
	if id == 0 || created["name"] != "Alice" {
		t.Fatalf("create payload = %v", created)
	}

	// Duplicate URI is a conflict.
	w, _ = doRequest(t, s, http.MethodPost, "/api/v1/contacts",
		`{"name":"Alias","uri":"sip:alice@example.com"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate uri: status = %d, want 409", w.Code)
	}

	// List.
	w, env = doRequest(t, s, http.MethodGet, "/api/v1/contacts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	if items := env.Data.([]any); len(items) != 1 {
		t.Errorf("list returned %d contacts, want 1", len(items))
	}

	// Update.
	path := "/api/v1/contacts/" + strconv.FormatInt(int64(id), 10)
	w, env = doRequest(t, s, http.MethodPut, path,
		`{"name":"Alice B","uri":"sip:alice@example.com","notes":"moved teams"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body %s", w.Code, w.Body.String())
	}
	if env.Data.(map[string]any)["name"] != "Alice B" {
		t.Errorf("update payload = %v", env.Data)
	}

	// Delete, then 404 on get.
	w, _ = doRequest(t, s, http.MethodDelete, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	w, _ = doRequest(t, s, http.MethodGet, path, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", w.Code)
	}
}

func TestCreateContactValidation(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"uri":"sip:bob@example.com"}`},
		{"missing uri", `{"name":"Bob"}`},
		{"uri with spaces", `{"name":"Bob","uri":"sip:bo b@example.com"}`},
		{"bad email", `{"name":"Bob","uri":"sip:bob@example.com","email":"not-an-email"}`},
		{"bad phone", `{"name":"Bob","uri":"sip:bob@example.com","phone":"call me maybe"}`},
		{"unknown field", `{"name":"Bob","uri":"sip:bob@example.com","nickname":"bobby"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doRequest(t, s, http.MethodPost, "/api/v1/contacts", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateContactURIConflict(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	w, _ := doRequest(t, s, http.MethodPost, "/api/v1/contacts",
		`{"name":"Alice","uri":"sip:alice@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create alice: status = %d", w.Code)
	}
	w, env := doRequest(t, s, http.MethodPost, "/api/v1/contacts",
		`{"name":"Bob","uri":"sip:bob@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create bob: status = %d", w.Code)
	}
	bobID := env.Data.(map[string]any)["id"].(float64)

	// Renaming bob's URI to alice's must conflict.
	w, _ = doRequest(t, s, http.MethodPut, "/api/v1/contacts/"+strconv.FormatInt(int64(bobID), 10),
		`{"name":"Bob","uri":"sip:alice@example.com"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}
