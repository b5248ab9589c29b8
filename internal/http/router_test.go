package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jw6ventures/roomwatch/internal/auth"
	"github.com/jw6ventures/roomwatch/internal/config"
	"github.com/jw6ventures/roomwatch/internal/credentials"
	"github.com/jw6ventures/roomwatch/internal/http/csrf"
	"github.com/jw6ventures/roomwatch/internal/rooms"
	"github.com/jw6ventures/roomwatch/internal/schedule"
)

type stubPortal struct {
	sessionIDs []string
}

func (p *stubPortal) ListRooms() []rooms.Room { return []rooms.Room{{ID: 1, Name: "A101"}} }
func (p *stubPortal) LookupRoom(name string) (rooms.Room, bool) {
	return rooms.Room{ID: 1, Name: "A101"}, name == "A101"
}
func (p *stubPortal) Room(id int) (rooms.Room, bool) { return rooms.Room{ID: id}, id == 1 }
func (p *stubPortal) DefaultRange() (string, string) { return "2025-01-01", "2025-01-15" }
func (p *stubPortal) CheckAuth(ctx context.Context) bool {
	p.sessionIDs = append(p.sessionIDs, auth.SessionIDFromContext(ctx))
	return false
}
func (p *stubPortal) GetSchedule(ctx context.Context, roomID int, start, end string) schedule.Result {
	return schedule.Result{Events: []schedule.Event{{Start: "2025-01-02T08:00:00", Title: "Lab"}}}
}
func (p *stubPortal) GetSchedules(ctx context.Context, ids []int, start, end string) map[int]schedule.Result {
	out := map[int]schedule.Result{}
	for _, id := range ids {
		out[id] = p.GetSchedule(ctx, id, start, end)
	}
	return out
}
func (p *stubPortal) Login(ctx context.Context, username, password string) (credentials.Credentials, error) {
	return credentials.Credentials{}, nil
}
func (p *stubPortal) Logout(ctx context.Context) error { return nil }

func testConfig() *config.Config {
	cfg := &config.Config{BaseURL: "http://localhost:5001", PrometheusEnabled: true}
	cfg.Session.Secret = strings.Repeat("s", 32)
	return cfg
}

func serve(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h, stop := NewRouter(testConfig(), Deps{Portal: &stubPortal{}})
	defer stop()

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/rooms", "", http.StatusOK},
		{http.MethodGet, "/api/rooms/lookup?name=A101", "", http.StatusOK},
		{http.MethodGet, "/api/rooms/lookup?name=nope", "", http.StatusNotFound},
		{http.MethodGet, "/api/schedule/1", "", http.StatusOK},
		{http.MethodGet, "/api/schedule/1.ics", "", http.StatusOK},
		{http.MethodGet, "/api/schedules?rooms=1,2", "", http.StatusOK},
		{http.MethodGet, "/api/auth/status", "", http.StatusOK},
		{http.MethodPost, "/api/auth/login", `{"username":"u","password":"p"}`, http.StatusOK},
		{http.MethodPost, "/api/auth/logout", "", http.StatusOK},
		{http.MethodGet, "/api/rewards", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/rooms/1/occupancy", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/rooms", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestICSRouteServesCalendar(t *testing.T) {
	h, stop := NewRouter(testConfig(), Deps{Portal: &stubPortal{}})
	defer stop()

	rec := serve(t, h, http.MethodGet, "/api/schedule/1.ics", "")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "SUMMARY:Lab") {
		t.Errorf("calendar body missing event: %s", rec.Body.String())
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PrometheusEnabled = false
	h, stop := NewRouter(cfg, Deps{Portal: &stubPortal{}})
	defer stop()

	if rec := serve(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionMiddlewareAttachesSessionID(t *testing.T) {
	cfg := testConfig()
	sessions, err := auth.NewSessionManager(cfg)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	p := &stubPortal{}
	h, stop := NewRouter(cfg, Deps{Portal: p, Sessions: sessions})
	defer stop()

	rec := serve(t, h, http.MethodGet, "/api/auth/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("expected a session cookie")
	}
	if len(p.sessionIDs) != 1 || p.sessionIDs[0] == "" {
		t.Fatalf("expected session id in context, got %v", p.sessionIDs)
	}
}

func TestCSRFProtectsMutatingRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFEnabled = true
	h, stop := NewRouter(cfg, Deps{Portal: &stubPortal{}})
	defer stop()

	rec := serve(t, h, http.MethodPost, "/api/auth/logout", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status without token = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: "tok"})
	req.Header.Set(csrf.HeaderName, "tok")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", rec.Code)
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	h, stop := NewRouter(testConfig(), Deps{Portal: &stubPortal{}})
	defer stop()

	limited := false
	for i := 0; i < 30; i++ {
		if rec := serve(t, h, http.MethodGet, "/api/auth/status", ""); rec.Code == http.StatusTooManyRequests {
			limited = true
			var body map[string]any
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body["success"] != false {
				t.Errorf("unexpected 429 body %v", body)
			}
			break
		}
	}
	if !limited {
		t.Fatal("expected auth routes to be rate limited")
	}
}
