package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mw "github.com/sipdeck/sipdeck/internal/api/middleware"
	"github.com/sipdeck/sipdeck/internal/call"
	"github.com/sipdeck/sipdeck/internal/config"
	"github.com/sipdeck/sipdeck/internal/database"
)

// fakePhone is a scripted CallController for handler tests.
type fakePhone struct {
	dialID     string
	dialErr    error
	opErr      error
	dtmfErr    error
	snapshot   call.Snapshot
	registered bool

	dialedDest string
	sentDigits string
}

func (f *fakePhone) Dial(_ context.Context, dest string) (string, error) {
	f.dialedDest = dest
	return f.dialID, f.dialErr
}
func (f *fakePhone) Answer(context.Context) error { return f.opErr }
func (f *fakePhone) Hangup(context.Context) error { return f.opErr }
func (f *fakePhone) Hold(context.Context) error   { return f.opErr }
func (f *fakePhone) Resume(context.Context) error { return f.opErr }
func (f *fakePhone) Mute(context.Context) error   { return f.opErr }
func (f *fakePhone) Unmute(context.Context) error { return f.opErr }
func (f *fakePhone) SendDTMF(_ context.Context, digits string) error {
	f.sentDigits = digits
	return f.dtmfErr
}
func (f *fakePhone) Status() call.Snapshot { return f.snapshot }
func (f *fakePhone) Registered() bool      { return f.registered }

// newTestServer builds a Server over a throwaway SQLite database.
func newTestServer(t *testing.T, phone CallController) *Server {
	t.Helper()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewServer(&config.Config{},
		phone,
		database.NewCallRepository(db),
		database.NewContactRepository(db),
		database.NewAdminUserRepository(db),
		[]byte("0123456789abcdef0123456789abcdef"),
		nil,
	)
	t.Cleanup(s.Close)
	return s
}

// bearer issues a token signed with the test server's secret.
func bearer(t *testing.T, s *Server) string {
	t.Helper()
	token, _, err := mw.GenerateToken(s.jwtSecret, 1, "admin")
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return "Bearer " + token
}

// doRequest runs an authenticated request against the server and decodes the
// response envelope.
func doRequest(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Authorization", bearer(t, s))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	var env envelope
	if w.Body.Len() > 0 && strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decoding response %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t, &fakePhone{registered: true})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	data := env.Data.(map[string]any)
	if data["status"] != "ok" || data["sip_registered"] != true {
		t.Errorf("health payload = %v", data)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	for _, path := range []string{
		"/api/v1/call/status",
		"/api/v1/history",
		"/api/v1/contacts",
	} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without auth: status = %d, want 401", path, w.Code)
		}
	}
}

func TestSetupLoginAndMe(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	// First boot: create the admin account.
	r := httptest.NewRequest(http.MethodPost, "/api/v1/setup",
		strings.NewReader(`{"username":"admin","password":"hunter2hunter2"}`))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status = %d, body %s", w.Code, w.Body.String())
	}

	// Second setup attempt is closed.
	r = httptest.NewRequest(http.MethodPost, "/api/v1/setup",
		strings.NewReader(`{"username":"other","password":"hunter2hunter2"}`))
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusConflict {
		t.Fatalf("second setup: status = %d, want 409", w.Code)
	}

	// Login sets the session cookies.
	r = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"admin","password":"hunter2hunter2"}`))
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == "sipdeck_session" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("login did not set the session cookie")
	}

	// The session cookie authenticates reads.
	r = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("me: status = %d, body %s", w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding me: %v", err)
	}
	if env.Data.(map[string]any)["username"] != "admin" {
		t.Errorf("me payload = %v", env.Data)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	s := newTestServer(t, &fakePhone{})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/setup",
		strings.NewReader(`{"username":"admin","password":"hunter2hunter2"}`))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status = %d", w.Code)
	}

	for name, body := range map[string]string{
		"wrong password": `{"username":"admin","password":"wrong-password"}`,
		"unknown user":   `{"username":"ghost","password":"hunter2hunter2"}`,
	} {
		r = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		w = httptest.NewRecorder()
		s.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, w.Code)
		}
	}
}

func TestTokenFlow(t *testing.T) {
	s := newTestServer(t, &fakePhone{registered: true})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/setup",
		strings.NewReader(`{"username":"admin","password":"hunter2hunter2"}`))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status = %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token",
		strings.NewReader(`{"username":"admin","password":"hunter2hunter2"}`))
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("token: status = %d, body %s", w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	token, _ := env.Data.(map[string]any)["token"].(string)
	if token == "" {
		t.Fatal("no token in response")
	}

	// The issued token authorizes API calls.
	r = httptest.NewRequest(http.MethodGet, "/api/v1/call/status", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status with issued token: %d, body %s", w.Code, w.Body.String())
	}
}
