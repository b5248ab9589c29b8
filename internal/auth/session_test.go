package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jw6ventures/roomwatch/internal/config"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	cfg := &config.Config{BaseURL: "http://localhost:5001"}
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Session.TTL = time.Hour
	m, err := NewSessionManager(cfg)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return m
}

func TestMiddlewareIssuesSession(t *testing.T) {
	m := newTestManager(t)

	var seen string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("expected a session id in context")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].Secure {
		t.Errorf("unexpected cookie flags: %+v", cookies[0])
	}

	// A follow-up request with the cookie keeps the same session.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	first := seen
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != first {
		t.Fatalf("expected session %q to be reused, got %q", first, seen)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("did not expect a new cookie for an existing session")
	}
}

func TestCurrentSessionIDRejectsTamperedAndExpired(t *testing.T) {
	m := newTestManager(t)

	rec := httptest.NewRecorder()
	if _, err := m.Issue(rec); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	cookie := rec.Result().Cookies()[0]

	tampered := httptest.NewRequest(http.MethodGet, "/", nil)
	tampered.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value + "x"})
	if _, ok := m.CurrentSessionID(tampered); ok {
		t.Fatal("tampered cookie must be rejected")
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if _, ok := m.CurrentSessionID(req); ok {
		t.Fatal("expired session must be rejected")
	}
}

func TestSecureCookieOnHTTPS(t *testing.T) {
	cfg := &config.Config{BaseURL: "https://rooms.example.org"}
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	m, err := NewSessionManager(cfg)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	rec := httptest.NewRecorder()
	m.Clear(rec)
	if c := rec.Result().Cookies(); len(c) != 1 || !c[0].Secure {
		t.Fatalf("expected secure clear cookie, got %v", c)
	}
}
